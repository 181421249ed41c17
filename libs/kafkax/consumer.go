package kafkax

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Deduper is satisfied by *Inbox; nil disables deduplication. Record runs only
// after the handler succeeded.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, eventType string) error
}

// Permanent marks a handler error that retrying cannot fix, such as a
// malformed payload. The message is logged and committed.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func IsPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer delivers each message at least once: the offset is committed only
// after the handler succeeded or failed permanently. Failed deliveries are
// retried in place with exponential backoff, holding back the partition.
type Consumer struct {
	reader     messageReader
	logger     *slog.Logger
	inbox      Deduper
	handler    Handler
	newBackOff func() backoff.BackOff
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topics  []string
	// RetryMaxInterval caps the wait between attempts; zero keeps 30s.
	RetryMaxInterval time.Duration
}

func NewConsumer(logger *slog.Logger, inbox Deduper, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	maxInterval := cfg.RetryMaxInterval
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = maxInterval
			return b
		},
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if err := c.deliver(ctx, msg); err != nil {
			// Only cancellation ends delivery early; the uncommitted offset is redelivered.
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// deliver retries process until it succeeds or fails permanently. It returns
// an error only when ctx ends first.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.process(ctx, msg)
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("event delivery failed, retrying",
				"err", err, "topic", msg.Topic, "attempt", attempt, "retry_in", wait)
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	meta := ExtractEventMeta(msg)
	c.logger.Error("event dropped", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
	return nil
}

func (c *Consumer) backOff() backoff.BackOff {
	if c.newBackOff == nil {
		return backoff.NewExponentialBackOff()
	}
	return c.newBackOff()
}

// process handles one delivery. Events already in the inbox are skipped; an
// event enters the inbox only once its handler succeeded.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	meta := ExtractEventMeta(msg)
	ctxSpan, span := startConsumeSpan(ctx, msg, meta)
	defer span.End()

	if c.inbox != nil {
		seen, err := c.inbox.Seen(ctxSpan, meta.EventID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if seen {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !IsPermanent(err) {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		}
		return err
	}

	if c.inbox != nil {
		if err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}
