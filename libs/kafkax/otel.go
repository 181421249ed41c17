package kafkax

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/masterparty/platform/libs/kafkax"

// InjectTraceHeaders writes the W3C trace headers of ctx into headers,
// replacing stale values.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	c := &messageHeaders{list: headers}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c.list
}

// ExtractTraceContext continues the producer's trace, if msg carries one.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &messageHeaders{list: msg.Headers})
}

// startConsumeSpan opens the consumer span of one delivery.
func startConsumeSpan(ctx context.Context, msg kafka.Message, meta EventMeta) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ExtractTraceContext(ctx, msg), msg.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.String("messaging.kafka.partition", strconv.Itoa(msg.Partition)),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
}

type messageHeaders struct {
	list []kafka.Header
}

func (h *messageHeaders) Get(key string) string {
	return HeaderValue(h.list, key)
}

func (h *messageHeaders) Keys() []string {
	keys := make([]string, len(h.list))
	for i, hdr := range h.list {
		keys[i] = hdr.Key
	}
	return keys
}

func (h *messageHeaders) Set(key, value string) {
	for i := range h.list {
		if h.list[i].Key == key {
			h.list[i].Value = []byte(value)
			return
		}
	}
	h.list = append(h.list, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*messageHeaders)(nil)
