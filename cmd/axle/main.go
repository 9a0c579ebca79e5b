package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/axle/pkg/api"
	"github.com/platinummonkey/axle/pkg/async"
	"github.com/platinummonkey/axle/pkg/auth"
	"github.com/platinummonkey/axle/pkg/billing"
	"github.com/platinummonkey/axle/pkg/config"
	"github.com/platinummonkey/axle/pkg/httputil"
	"github.com/platinummonkey/axle/pkg/middleware"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/orgs"
	"github.com/platinummonkey/axle/pkg/reports"
	"github.com/platinummonkey/axle/pkg/storage"
	storagepg "github.com/platinummonkey/axle/pkg/storage/postgres"
)

const (
	// Request bodies are small JSON documents; Stripe caps webhook
	// payloads well under this.
	maxRequestBytes = 1 << 20

	gaugeRefreshInterval = time.Minute
)

func main() {
	// .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	async.SetLogger(logger)
	logger.WithFields(map[string]interface{}{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"health_port": cfg.Server.HealthPort,
	}).Info("Starting axle API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	connCfg := storagepg.FromStorageConfig(cfg.Storage)
	connCfg.Logger = logger
	connMgr, err := storagepg.NewConnectionManager(connCfg)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to PostgreSQL")
		os.Exit(1)
	}
	db := connMgr.Primary()

	if err := storagepg.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run database migrations")
		os.Exit(1)
	}

	if len(connMgr.AllReplicas()) > 0 {
		connMgr.StartHealthCheckRoutine(ctx, 0)
	}

	// Redis backs the distributed rate limiter and the readiness probe.
	// The API works without it.
	var redisClient *storagepg.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storagepg.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, rate limiting falls back to in-memory buckets")
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var archiver *billing.Archiver
	if cfg.Billing.ArchiveEnabled {
		s3Client, err := storage.NewS3Client(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize S3 webhook archive")
			os.Exit(1)
		}
		archiver = billing.NewArchiver(s3Client, nil)
		logger.WithField("bucket", cfg.Storage.S3Bucket).Info("Webhook payload archival enabled")
	}

	orgService := orgs.NewPostgresService(db)
	billingService := billing.NewPostgresService(db, cfg.Billing.WebhookSecret, orgService, archiver)
	authService := auth.NewPostgresService(db, cfg.Auth.PrincipalCacheSize, cfg.Auth.PrincipalCacheTTL)

	if cfg.Billing.WebhookSecret == "" {
		logger.Warn("Webhook signature verification disabled (no secret configured)")
	}

	var rateLimit *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		baseLimit := middleware.Limit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}
		rules, err := middleware.LoadRules(cfg.RateLimit.RulesPath, baseLimit)
		if err != nil {
			logger.WithError(err).Error("Failed to load rate limit rules")
			os.Exit(1)
		}
		var sharedCounters *redis.Client
		if cfg.RateLimit.Distributed && redisClient != nil {
			sharedCounters = redisClient.GetClient()
		}
		rateLimit = middleware.NewRateLimitMiddleware(rules, sharedCounters, metrics)

		if cfg.RateLimit.RulesPath != "" {
			if err := middleware.WatchRules(ctx, cfg.RateLimit.RulesPath, baseLimit, rateLimit.SetRules, logger); err != nil {
				logger.WithError(err).Warn("Rate limit rules will not reload on change")
			}
		}
	}

	server := api.NewServer(orgService, billingService, authService, rateLimit, metrics)

	pipeline := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	}
	if cfg.Observability.MetricsEnabled {
		pipeline = append(pipeline, observability.HTTPMetricsMiddleware(metrics))
	}
	pipeline = append(pipeline,
		httputil.CORSMiddleware([]string{"*"}),
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)
	handler := httputil.Chain(pipeline...)(server)
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "axle.http",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}))
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics get their own listener so probes bypass auth and
	// rate limiting.
	opsMux := http.NewServeMux()
	var redisForHealth *redis.Client
	if redisClient != nil {
		redisForHealth = redisClient.GetClient()
	}
	observability.RegisterHealthRoutes(opsMux, observability.NewHealthChecker(db, redisForHealth))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: opsMux,
	}

	if cfg.Observability.MetricsEnabled {
		go refreshSubscriptionGauges(ctx, reports.NewAggregator(db), metrics, logger)
	}

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return opsServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return connMgr.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.Infof("Ops server listening on %s", opsServer.Addr)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Ops server error")
		}
	}()

	go func() {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server error")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

// refreshSubscriptionGauges keeps the subscription census gauge current.
func refreshSubscriptionGauges(ctx context.Context, agg *reports.Aggregator, metrics *observability.Metrics, logger *observability.Logger) {
	defer observability.RecoverPanic(logger, "subscription gauge refresher")

	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	for {
		refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := agg.RefreshSubscriptionGauges(refreshCtx, metrics); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("Failed to refresh subscription gauges")
		}
		cancel()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
