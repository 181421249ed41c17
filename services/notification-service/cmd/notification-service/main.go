package main

import (
	"context"
	"net/http"
	"time"

	"github.com/masterparty/platform/libs/config"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/kafkax"
	"github.com/masterparty/platform/libs/mail"
	otelx "github.com/masterparty/platform/libs/otel"
	"github.com/masterparty/platform/libs/outbox"
	"github.com/masterparty/platform/libs/runtime"
	"github.com/masterparty/platform/services/notification-service/internal/dispatch"
	"github.com/masterparty/platform/services/notification-service/internal/handlers"
	"github.com/masterparty/platform/services/notification-service/internal/storage"
	"github.com/masterparty/platform/services/notification-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	sender, err := mail.NewFromConfig(mail.ConfigFromEnv())
	if err != nil {
		logger.Error("mail sender init failed", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	if config.Bool("AUTO_MIGRATE", true) {
		if err := db.Migrate(dbURL, migrations.FS, "."); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}
	pool, err := db.Open(ctx, dbURL, db.PoolOptionsFromEnv(service))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	outboxRepo := outbox.NewRepository()
	notifications := storage.NewRepository(pool, outboxRepo)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	dispatcher := dispatch.New(sender, notifications, logger, dispatch.Options{
		SendTimeout: config.Duration("MAIL_SEND_TIMEOUT", 10*time.Second),
		MaxAttempts: uint(config.Int("MAIL_MAX_ATTEMPTS", 3)),
	})
	consumer := kafkax.NewConsumer(logger, kafkax.NewInbox(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", service),
		Topics:  dispatch.Topics,
	}, dispatcher.Handle)
	go consumer.Run(ctx)
	logger.Info("mail provider selected", "provider", sender.ProviderID())

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.New(notifications, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second)); err != nil {
		panic(err)
	}
}
