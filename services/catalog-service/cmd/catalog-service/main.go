package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/masterparty/platform/libs/config"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/grpcx"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/kafkax"
	otelx "github.com/masterparty/platform/libs/otel"
	"github.com/masterparty/platform/libs/outbox"
	"github.com/masterparty/platform/libs/runtime"
	"github.com/masterparty/platform/services/catalog-service/internal/handlers"
	"github.com/masterparty/platform/services/catalog-service/internal/storage"
	"github.com/masterparty/platform/services/catalog-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// healthService is the gRPC health name booking-service probes before trusting catalog lookups.
const healthService = "masterparty.catalog.v1"

func main() {
	service := config.String("SERVICE_NAME", "catalog-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9082")
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

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	repo := storage.NewRepository(pool, outboxRepo)
	catalogHandler := handlers.New(repo, logger, uuid.NewString)

	grpcServer := grpcx.NewServer(logger)
	if err := grpcServer.Start(ctx, ":"+grpcPort); err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	grpcServer.SetServing(healthService, true)
	grpcServer.SetServing("", true)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	catalogHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "catalog")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second)); err != nil {
		panic(err)
	}
}
