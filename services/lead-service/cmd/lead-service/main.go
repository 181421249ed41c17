package main

import (
	"context"
	"net/http"
	"time"

	"github.com/masterparty/platform/libs/config"
	"github.com/masterparty/platform/libs/db"
	"github.com/masterparty/platform/libs/httpx"
	"github.com/masterparty/platform/libs/mail"
	otelx "github.com/masterparty/platform/libs/otel"
	"github.com/masterparty/platform/libs/redisx"
	"github.com/masterparty/platform/libs/runtime"
	"github.com/masterparty/platform/services/lead-service/internal/handlers"
	"github.com/masterparty/platform/services/lead-service/internal/leads"
	"github.com/masterparty/platform/services/lead-service/internal/storage"
	"github.com/masterparty/platform/services/lead-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "lead-service")
	port, err := config.Port("PORT", "8086")
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

	sender, err := mail.NewFromConfig(mail.ConfigFromEnv())
	if err != nil {
		panic(err)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	var throttle leads.Throttle
	if rdb := redisx.NewClientFromEnv(); rdb != nil {
		defer func() { _ = rdb.Close() }()
		throttle = httpx.NewRedisRateLimiter(rdb,
			config.Int("LEAD_EMAILS_PER_WINDOW", 3),
			config.Duration("LEAD_EMAIL_WINDOW", time.Hour),
			"lead-mail",
		)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
		logger.Info("lead confirmation throttle enabled (redis)")
	}

	svc := leads.NewService(storage.NewRepository(pool), sender, throttle, logger)
	httpHandler := handlers.New(svc, logger)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/lead", httpHandler.AddProviderLead)
	mux.HandleFunc("/api/v1/leads", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			httpHandler.ListLeads(w, r)
			return
		}
		httpHandler.AddProviderLead(w, r)
	})

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(16<<10),
	)
	handler = otelhttp.NewHandler(handler, "lead")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second)); err != nil {
		panic(err)
	}
}
