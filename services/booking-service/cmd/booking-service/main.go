package main

import (
	"context"
	"net/http"
	"time"

	"github.com/masterparty/platform/libs/config"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/grpcx"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/kafkax"
	otelx "github.com/masterparty/platform/libs/otel"
	"github.com/masterparty/platform/libs/outbox"
	"github.com/masterparty/platform/libs/runtime"
	"github.com/masterparty/platform/services/booking-service/internal/handlers"
	"github.com/masterparty/platform/services/booking-service/internal/scheduling"
	"github.com/masterparty/platform/services/booking-service/internal/storage"
	"github.com/masterparty/platform/services/booking-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if addr := config.String("CATALOG_GRPC_ADDR", "catalog-service:9082"); addr != "" {
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{UserAgent: service})
		if err != nil {
			logger.Error("catalog grpc client init failed", "err", err)
		} else {
			defer func() { _ = conn.Close() }()
			checks = append(checks, runtime.ReadyCheck{
				Name:  "catalog",
				Check: grpcx.HealthReadyCheck(conn, config.String("CATALOG_HEALTH_SERVICE", "masterparty.catalog.v1")),
			})
		}
	}

	repo := storage.NewBookingRepository(pool, outboxRepo)
	catalog := scheduling.NewProvider(config.String("CATALOG_URL", "http://catalog-service:8082"))
	bookingHandler := handlers.NewBookingHandler(repo, catalog, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	bookingHandler.Register(mux)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(64<<10),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second)); err != nil {
		panic(err)
	}
}
