package main

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/masterparty/platform/libs/auth"
	"github.com/masterparty/platform/libs/config"
	"github.com/masterparty/platform/libs/httpx"
	otelx "github.com/masterparty/platform/libs/otel"
	"github.com/masterparty/platform/libs/redisx"
	"github.com/masterparty/platform/libs/runtime"
	"github.com/masterparty/platform/services/gateway-service/internal/maintenance"
	"github.com/masterparty/platform/services/gateway-service/internal/routes"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	transport := httpx.RequestIDTransport{Base: otelhttp.NewTransport(http.DefaultTransport)}

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "dev-secret")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		ttl := config.Duration("JWKS_CACHE_TTL", 5*time.Minute)
		verifier.JWKS = auth.NewJWKSClient(jwksURL, ttl, &http.Client{Transport: transport, Timeout: 5 * time.Second})
		if config.Bool("JWT_RS256_ONLY", false) {
			verifier.Secret = ""
		}
		logger.Info("rs256 verification enabled", "jwks_url", jwksURL)
	}

	rdb := redisx.NewClientFromEnv()
	var checks []runtime.ReadyCheck
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	routes.Register(mux, routes.Config{
		Upstreams: routes.Upstreams{
			Lead:         mustParseURL(config.String("LEAD_URL", "http://lead-service:8086")),
			Auth:         mustParseURL(config.String("AUTH_URL", "http://auth-service:8081")),
			Catalog:      mustParseURL(config.String("CATALOG_URL", "http://catalog-service:8082")),
			Booking:      mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
			Notification: mustParseURL(config.String("NOTIFICATION_URL", "http://notification-service:8085")),
		},
		Verifier:  verifier,
		Transport: transport,
		Logger:    logger,
	})

	var maintenanceSwitch maintenance.Switch = maintenance.Static(config.Bool("MAINTENANCE_MODE", false))
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		maintenanceSwitch = maintenance.NewRedis(rdb,
			config.String("MAINTENANCE_REDIS_KEY", "masterparty:maintenance"),
			config.Bool("MAINTENANCE_MODE", false),
			config.Duration("MAINTENANCE_CACHE_TTL", 5*time.Second),
			logger,
		)
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			ExposedHeaders:   []string{httpx.RequestIDHeader, "Retry-After"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		maintenance.Middleware(maintenanceSwitch),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, logger, config.Duration("SHUTDOWN_GRACE", 10*time.Second)); err != nil {
		panic(err)
	}
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
