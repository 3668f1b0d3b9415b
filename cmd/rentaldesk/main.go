package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/rentaldesk/rentaldesk/internal/account"
	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/booking"
	"github.com/rentaldesk/rentaldesk/internal/dashboard"
	"github.com/rentaldesk/rentaldesk/internal/fleet"
	"github.com/rentaldesk/rentaldesk/internal/media"
	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/config"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/platform/middleware"
	"github.com/rentaldesk/rentaldesk/internal/platform/server"
	"github.com/rentaldesk/rentaldesk/internal/platform/telemetry"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
	"github.com/rentaldesk/rentaldesk/internal/task"
	"github.com/rentaldesk/rentaldesk/internal/tenant"
	"github.com/rentaldesk/rentaldesk/migrations"
)

const serviceName = "rentaldesk"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("rentaldesk starting", "addr", cfg.Server.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  serviceName,
		Environment:  cfg.Tracing.Environment,
		Exporter:     cfg.Tracing.Exporter,
		Endpoint:     cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	pool, err := database.Connect(ctx, cfg.Database.URL, database.PoolConfig{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := database.RunMigrations(ctx, cfg.Database.URL, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("migrations complete")
	}

	var (
		reg         = telemetry.NewRegistry()
		httpMetrics = middleware.NewMetrics()
		auditMetric = audit.NewMetrics()
	)
	if err := httpMetrics.Register(reg); err != nil {
		return fmt.Errorf("registering http metrics: %w", err)
	}
	if err := auditMetric.Register(reg); err != nil {
		return fmt.Errorf("registering audit metrics: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RateLimit.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Limiter fails open; keep serving.
			slog.Warn("redis unreachable, rate limiting degraded", "error", err)
		}
	}
	loginLimit, err := buildLoginLimit(ctx, cfg.RateLimit, redisClient, httpMetrics)
	if err != nil {
		return fmt.Errorf("configuring rate limit: %w", err)
	}

	// Auth and scope
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
		cfg.Auth.JWT.RefreshExpiryHours,
	)
	accounts := auth.NewStore(pool)
	families := auth.NewRefreshTokenStore(pool)
	sessions := auth.NewSessions(tokenSvc, families)
	resolver := rbac.NewResolver(tenant.NewLookup(pool))
	engine := rbac.DefaultEvaluator()

	// Audit
	auditStore := audit.NewStore()
	sink, closeSink := buildAuditSink(pool, auditStore, cfg.Audit, auditMetric)
	defer closeSink()
	recorder := audit.NewRecorder(accounts, resolver, sink, auditMetric)

	runner := database.NewPoolRunner(pool)
	deps := mutation.Deps{Runner: runner, Engine: engine, Audit: recorder}

	managers := tenant.NewManagerStore()
	fleetHandler := fleet.NewHandler(fleet.NewCarStore(), deps)

	var presigner *media.Presigner
	if storage := mediaConfig(cfg.Storage); storage.Enabled() {
		presigner, err = media.NewPresigner(storage)
		if err != nil {
			return fmt.Errorf("configuring storage: %w", err)
		}
		slog.Info("car image uploads enabled", "bucket", storage.Bucket)
	}

	svc := account.NewService(accounts, sessions, families, managers, runner, recorder)

	srv := server.New(cfg.Server.Addr(), server.Dependencies{
		Pool:               pool,
		Auth:               tokenSvc,
		Identities:         accounts,
		Scopes:             resolver,
		RBAC:               engine,
		AccountHandler:     account.NewHandler(svc),
		TenantHandler:      tenant.NewHandler(tenant.NewStore(), managers, deps),
		FleetHandler:       fleetHandler,
		BookingHandler:     booking.NewHandler(deps),
		TaskHandler:        task.NewHandler(deps),
		DashboardHandler:   dashboard.NewHandler(runner),
		MediaHandler:       media.NewHandler(fleetHandler.Cars(), presigner),
		AuditHandler:       audit.NewHandler(pool, auditStore, recorder),
		LoginLimit:         loginLimit,
		Metrics:            httpMetrics,
		MetricsRegistry:    metricsRegistry(cfg.Metrics, reg),
		TracingService:     tracingService(cfg.Tracing),
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	return srv.Start(ctx)
}

// buildLoginLimit picks the rate limit store for the login routes. A nil
// client selects the in-process store, swept in the background until ctx ends.
func buildLoginLimit(ctx context.Context, cfg config.RateLimitConfig, client *redis.Client, metrics *middleware.Metrics) (func(http.Handler) http.Handler, error) {
	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	limit := middleware.RateLimit{Requests: cfg.Requests, Window: cfg.Window}

	var store middleware.RateLimitStore
	if client != nil {
		store = middleware.NewRedisRateLimitStore(client, serviceName+":ratelimit")
	} else {
		mem := middleware.NewMemoryRateLimitStore()
		go mem.RunSweeper(ctx, cfg.SweepInterval)
		store = mem
	}
	return middleware.RateLimiter(store, limit, middleware.IPKey("auth", trusted...), metrics), nil
}

func buildAuditSink(db database.Querier, store *audit.Store, cfg config.AuditConfig, metrics *audit.Metrics) (audit.Sink, func()) {
	if !cfg.Async {
		return audit.NewDirectSink(store, db), func() {}
	}
	async := audit.NewAsyncSink(db, store, audit.LoggerConfig{
		BufferSize:    cfg.BufferSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, metrics)
	slog.Info("audit sink running async", "buffer", cfg.BufferSize)
	return async, func() {
		if err := async.Close(); err != nil {
			slog.Warn("audit sink close", "error", err)
		}
	}
}

func mediaConfig(c config.StorageConfig) media.Config {
	return media.Config{
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		MaxSizeMB:       c.MaxSizeMB,
		URLExpiry:       c.URLExpiry,
	}
}

func metricsRegistry(c config.MetricsConfig, reg *prometheus.Registry) *prometheus.Registry {
	if !c.Enabled {
		return nil
	}
	return reg
}

func tracingService(c config.TracingConfig) string {
	if !c.Enabled {
		return ""
	}
	return serviceName
}
