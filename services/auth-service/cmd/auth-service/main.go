package main

import (
	"context"
	"net/http"
	"time"

	"github.com/masterparty/platform/libs/config"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/kafkax"
	otelx "github.com/masterparty/platform/libs/otel"
	"github.com/masterparty/platform/libs/outbox"
	"github.com/masterparty/platform/libs/runtime"
	"github.com/masterparty/platform/services/auth-service/internal/audit"
	"github.com/masterparty/platform/services/auth-service/internal/grants"
	"github.com/masterparty/platform/services/auth-service/internal/handlers"
	"github.com/masterparty/platform/services/auth-service/internal/sessions"
	"github.com/masterparty/platform/services/auth-service/internal/signing"
	"github.com/masterparty/platform/services/auth-service/internal/storage"
	"github.com/masterparty/platform/services/auth-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
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

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
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

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	userRepo := storage.NewUserRepository(pool, outboxRepo)
	auditRepo := audit.NewRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		consumer := kafkax.NewConsumer(logger, kafkax.NewInbox(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  []string{grants.TopicProviderCreated},
		}, grants.ProviderCreated(userRepo, auditRepo, logger))
		go consumer.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; provider role grants are disabled")
	}

	authHandler := handlers.NewAuthHandler(signer, userRepo, refreshRepo, auditRepo, logger, handlers.Options{
		AccessTTL:   config.Duration("ACCESS_TTL", time.Hour),
		RefreshTTL:  time.Duration(config.Int("REFRESH_TTL_HOURS", 720)) * time.Hour,
		RotateKey:   config.String("JWT_ROTATE_KEY", ""),
		AdminEmails: config.List("ADMIN_EMAILS", ""),
	})
	mux := runtime.NewBaseMuxWithReady(checks...)
	authHandler.Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second)); err != nil {
		panic(err)
	}
}

// buildSigner prefers a rotating RS256 key bundle, then a single RS256 key, then HS256.
func buildSigner() (signing.Signer, error) {
	if bundle := config.String("JWT_PRIVATE_KEYS_PEM", ""); bundle != "" {
		keys, err := signing.ParseKeyBundle(bundle)
		if err != nil {
			return nil, err
		}
		return signing.NewKeySet(keys, config.String("JWT_ACTIVE_KID", ""))
	}
	if single := config.String("JWT_PRIVATE_KEY_PEM", ""); single != "" {
		return signing.NewRS256([]byte(single), config.String("JWT_KID", ""))
	}
	return signing.NewHS256(config.String("JWT_SECRET", "dev-secret")), nil
}
