package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelrank/reelrank/internal/analytics"
	"github.com/reelrank/reelrank/internal/api"
	"github.com/reelrank/reelrank/internal/clientid"
	"github.com/reelrank/reelrank/internal/clock"
	"github.com/reelrank/reelrank/internal/config"
	"github.com/reelrank/reelrank/internal/database"
	"github.com/reelrank/reelrank/internal/keywords"
	"github.com/reelrank/reelrank/internal/kv"
	mw "github.com/reelrank/reelrank/internal/middleware"
	inats "github.com/reelrank/reelrank/internal/nats"
	"github.com/reelrank/reelrank/internal/quota"
	iredis "github.com/reelrank/reelrank/internal/redis"
	"github.com/reelrank/reelrank/internal/referral"
	"github.com/reelrank/reelrank/internal/server"
)

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

	clk := clock.Real{}
	var probes api.Probes

	// Redis (optional): shared quota, referral and burst-limit state
	var (
		redisClient *redis.Client
		kvStore     kv.Store
		quotaStore  quota.Store
	)
	policy := quota.Policy{
		BaseMax:     cfg.Quota.BaseMax,
		BonusAmount: cfg.Quota.BonusAmount,
		Cycle:       cfg.Quota.Cycle,
		Unlimited:   cfg.Quota.Mode == "unlimited",
	}
	if cfg.Redis.Enabled {
		redisClient, err = iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Error("connecting to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		probes.Redis = redisClient

		kvStore = kv.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
		quotaStore = quota.NewKVStore(kvStore, quota.Keys{
			Usage: cfg.Quota.UsageKey,
			Bonus: cfg.Quota.BonusKey,
		}, policy, clk)
	} else {
		slog.Warn("redis disabled, quota and referral state is process-local")
		kvStore = kv.NewMemoryStore(clk)
		quotaStore = quota.NewMemoryStore()
	}

	// PostgreSQL (optional): analytics persistence
	var analyticsRepo *analytics.Repository
	if cfg.DB.Enabled {
		if err := database.RunMigrations(cfg.DB); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			slog.Error("connecting to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		probes.DB = pool
		analyticsRepo = analytics.NewRepository(pool)
	}

	// Analytics sinks
	var sinks []analytics.Sink
	if cfg.Analytics.LogEvents {
		sinks = append(sinks, analytics.NewLogSink(slog.Default()))
	}

	var natsClient *inats.Client
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		probes.NATS = natsClient
		sinks = append(sinks, analytics.NewNATSSink(inats.NewPublisher(natsClient.JetStream())))

		if cfg.Analytics.Persist && analyticsRepo != nil {
			consumer := analytics.NewConsumer(analyticsRepo, inats.NewConsumerManager(natsClient.JetStream()))
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("analytics consumer stopped", "error", err)
				}
			}()
		}
	}

	if cfg.Sheets.SpreadsheetID != "" {
		sheets, err := analytics.NewSheetsSink(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, cfg.Sheets.CredentialsFile)
		if err != nil {
			slog.Error("creating sheets sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, sheets)
	}

	emitter := analytics.NewEmitter(analytics.EmitterConfig{
		QueueSize:   cfg.Analytics.QueueSize,
		Workers:     cfg.Analytics.Workers,
		SinkTimeout: cfg.Analytics.SinkTimeout,
	}, clk, sinks...)

	// Client identity
	clientCfg := clientid.Config{
		Source:     clientid.KeySource(cfg.Quota.KeySource),
		CookieName: cfg.Device.CookieName,
		HashKey:    cfg.Device.HashKey,
		TrustProxy: cfg.Device.TrustProxy,
	}
	if clientCfg.Source == clientid.SourceDevice {
		clientCfg.Devices = clientid.NewDeviceTokens(cfg.Device.CookieSecret, cfg.Device.CookieTTL, clk)
	}
	resolver, err := clientid.NewResolver(clientCfg)
	if err != nil {
		slog.Error("creating client resolver", "error", err)
		os.Exit(1)
	}

	// Quota and referral
	quotaTracker := quota.NewTracker(quotaStore, policy, clk)
	referralTracker := referral.NewTracker(kvStore, referral.Config{
		Keys: referral.Keys{
			Record:  cfg.Referral.Key,
			Scratch: cfg.Referral.ScratchKey,
		},
		TTL:            cfg.Referral.TTL,
		AllowedOrigins: cfg.Referral.AllowedOrigins,
	}, clk)
	quotaHandler := quota.NewHandler(quotaTracker, referralTracker, emitter)
	referralHandler := referral.NewHandler(referralTracker, quotaTracker, emitter)

	// Keywords
	keywordSvc := keywords.NewService(keywords.NewGeminiClient(cfg.LLM), quotaTracker, referralTracker, emitter)
	keywordHandler := keywords.NewHandler(keywordSvc, clk)

	// Burst limiter
	var limiter mw.Limiter
	if redisClient != nil {
		limiter = mw.NewRedisLimiter(redisClient, cfg.Redis.KeyPrefix+"ratelimit:", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		local := mw.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		local.StartJanitor(ctx, 2*time.Minute)
		limiter = local
	}

	handlers := api.HandlerSet{
		GenerateKeywords: keywordHandler.Generate,
		ExplainKeyword:   keywordHandler.Explain,
		Usage:            quotaHandler.Usage,
		ClaimBonus:       quotaHandler.ClaimBonus,
		Session:          referralHandler.Session,
		ReferralMessage:  referralHandler.Message,
		ClientID:         resolver.Middleware,
	}
	if analyticsRepo != nil && cfg.Analytics.AdminToken != "" {
		summary := analytics.NewHandler(analyticsRepo, cfg.Analytics.AdminToken, clk)
		handlers.AnalyticsSummary = summary.Summary
		handlers.AnalyticsAuth = summary.RequireToken
	}

	router := api.NewRouter(probes, api.RouterConfig{
		CORSAllowedOrigins:  cfg.CORS.AllowedOrigins,
		FrameAncestors:      cfg.CORS.AllowedOrigins,
		GenerateRateLimiter: mw.RateLimit(limiter, cfg.RateLimit.Window),
	}, handlers)

	// Start server
	srv := server.New(cfg.Server, router)
	srv.OnShutdown(
		emitter.Close,
		func(context.Context) error {
			cancel()
			if natsClient != nil {
				natsClient.Close()
			}
			return nil
		},
	)
	if err := srv.Start(ctx); err != nil {
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
