package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/reachpoint-platform/reachpoint/internal/api"
	"github.com/reachpoint-platform/reachpoint/internal/batch"
	"github.com/reachpoint-platform/reachpoint/internal/billing"
	"github.com/reachpoint-platform/reachpoint/internal/campaign"
	"github.com/reachpoint-platform/reachpoint/internal/config"
	"github.com/reachpoint-platform/reachpoint/internal/database"
	"github.com/reachpoint-platform/reachpoint/internal/events"
	"github.com/reachpoint-platform/reachpoint/internal/middleware"
	"github.com/reachpoint-platform/reachpoint/internal/providers"
	"github.com/reachpoint-platform/reachpoint/internal/quota"
	"github.com/reachpoint-platform/reachpoint/internal/ratelimit"
	iredis "github.com/reachpoint-platform/reachpoint/internal/redis"
	"github.com/reachpoint-platform/reachpoint/internal/server"
)

const migrationsPath = "migrations"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), migrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var (
		eventsClient *events.Client
		publisher    *events.Publisher
	)
	if cfg.NATS.URL != "" {
		eventsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		publisher = events.NewPublisher(eventsClient.JetStream())
	}

	// Tracking stores
	var (
		quotaStore   quota.Store
		billingStore billing.Store
	)
	switch cfg.Store.Backend {
	case "redis":
		quotaStore = quota.NewRedisStore(redisClient)
		billingStore = billing.NewRedisStore(redisClient)
	default:
		quotaStore = quota.NewPostgresStore(pool)
		billingStore = billing.NewPostgresStore(pool)
	}

	// Rate limiter with background sweep
	limiter := ratelimit.New(ratelimit.DefaultRules(),
		ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval))
	go limiter.Start(ctx)

	// Quota and budget enforcement
	quotaManager := quota.NewManager(quotaStore)

	var alerts billing.AlertPublisher
	if publisher != nil {
		alerts = publisher
	}
	budgetGuard := billing.NewGuard(billingStore, alerts)

	// Providers
	registry := providers.NewRegistry()
	dryRun := providers.NewDryRunSender(slog.Default())
	registry.Register(providers.ChannelEmail, dryRun)
	registry.Register(providers.ChannelSMS, dryRun)
	registry.Register(providers.ChannelWhatsApp, dryRun)

	// Campaign service
	var audit campaign.AuditPublisher
	if publisher != nil {
		audit = publisher
	}
	campaignSvc := campaign.NewService(limiter, quotaManager, budgetGuard, registry, audit,
		batch.Config{BatchSize: cfg.Dispatch.BatchSize, Delay: cfg.Dispatch.BatchDelay},
		slog.Default())
	campaignHandler := campaign.NewHandler(campaignSvc)

	// Router
	router := api.NewRouter(pool, eventsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		APIRateLimiter:     middleware.APIRateLimit(limiter),
	}, api.HandlerSet{
		DispatchCampaign: campaignHandler.Dispatch,

		GetQuota:          campaignHandler.GetQuota,
		ResetQuotaBreaker: campaignHandler.ResetQuotaBreaker,

		GetBudget:       campaignHandler.GetBudget,
		BlockSpending:   campaignHandler.BlockSpending,
		UnblockSpending: campaignHandler.UnblockSpending,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
