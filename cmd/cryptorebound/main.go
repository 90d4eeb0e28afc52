package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/config"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/cache"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/freshness"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/merge"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/quality"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/ratelimit"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/refresh"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/metrics"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/server/api"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/version"

	// Import providers to register them
	_ "github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources/providers"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	noWarmup   = flag.Bool("no-warmup", false, "Skip the startup cache warmup")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("cryptorebound-ranker version %s\n", version.Version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting cryptorebound-ranker", "version", version.Version)

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- run(ctx, cfg, logger)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	<-shutdownCtx.Done()
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	// Initialize sources in priority order
	enabledCfgs := cfg.EnabledSources()
	allSources := make([]sources.Source, 0, len(enabledCfgs))
	priorityOrder := make([]string, 0, len(enabledCfgs))
	weights := make(map[string]float64, len(enabledCfgs))
	quotas := make(map[string]ratelimit.Quota, len(enabledCfgs))

	for _, sourceCfg := range enabledCfgs {
		logger.Info("Initializing source",
			"name", sourceCfg.Name,
			"priority", sourceCfg.Priority,
			"weight", sourceCfg.Weight)

		// Add logger to config so sources don't create their own
		if sourceCfg.Config == nil {
			sourceCfg.Config = make(map[string]interface{})
		}
		sourceCfg.Config["logger"] = logger

		source, err := sources.Create(sourceCfg.Name, sourceCfg.Config)
		if err != nil {
			logger.Warn("Failed to create source", "name", sourceCfg.Name, "error", err)
			continue
		}

		allSources = append(allSources, source)
		priorityOrder = append(priorityOrder, source.Name())
		weights[source.Name()] = sourceCfg.Weight
		quotas[source.Name()] = ratelimit.Quota{
			Calls:  sourceCfg.Quota.Calls,
			Window: sourceCfg.Quota.Window.ToDuration(),
		}
	}

	if len(allSources) == 0 {
		return fmt.Errorf("no sources available")
	}

	// Wire up the aggregation pipeline
	governor := ratelimit.NewGovernor(quotas, logger)
	scorer := quality.NewScorer(weights, priorityOrder)
	merger := merge.NewMerger(scorer, logger)
	policy := freshness.NewPolicy(
		cfg.Engine.Freshness.Multiplier,
		cfg.Engine.Freshness.HardBoundMultiplier,
		cfg.Engine.Freshness.LoadThreshold)

	// Cache tiers: memory always, Redis when enabled
	memory := cache.NewMemoryCache(
		cfg.Engine.Cache.MemoryTTL.ToDuration(),
		cfg.Engine.Cache.SweepInterval.ToDuration(),
		logger)
	memory.Start()
	defer memory.Stop()

	var persistent cache.Persistent
	if cfg.Engine.Cache.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Engine.Cache.Redis.Addr,
			Password: cfg.Engine.Cache.Redis.Password,
			DB:       cfg.Engine.Cache.Redis.DB,
		})
		store := cache.NewRedisStore(client, cfg.Engine.Cache.Redis.TTL.ToDuration(), logger)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("Redis unreachable, running memory-only", "addr", cfg.Engine.Cache.Redis.Addr, "error", err)
		} else {
			logger.Info("Connected to Redis", "addr", cfg.Engine.Cache.Redis.Addr)
			persistent = store
		}
	}

	store := cache.NewStore(memory, persistent, logger)

	coordinator := refresh.NewCoordinator(store, governor, merger, allSources, refresh.Config{
		JobTimeout:        cfg.Engine.Refresh.JobTimeout.ToDuration(),
		AdmissionInterval: cfg.Engine.Refresh.AdmissionInterval.ToDuration(),
		Retention:         cfg.Engine.Refresh.Retention.ToDuration(),
		FetchLimit:        cfg.Engine.Refresh.FetchLimit,
	}, logger)
	defer coordinator.Stop()

	eng := engine.New(store, coordinator, policy, allSources, logger)

	// Start WebSocket server if enabled; completed refreshes stream to it.
	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.Server.WebSocket.Addr, logger)
		eng.OnRefresh(wsServer.SendUpdate)

		go func() {
			if err := wsServer.Start(ctx); err != nil {
				logger.Error("WebSocket server error", "error", err)
			}
		}()
	}

	// Warm the cache for the configured periods
	if !*noWarmup {
		periods := make([]model.Period, 0, len(cfg.Engine.Refresh.WarmupPeriods))
		for _, raw := range cfg.Engine.Refresh.WarmupPeriods {
			period, err := model.ParsePeriod(raw)
			if err != nil {
				continue
			}
			periods = append(periods, period)
		}
		ids := eng.TriggerAll(ctx, "", periods, false)
		logger.Info("Warmup refreshes triggered", "jobs", len(ids))
	}

	// Start HTTP server
	server := api.NewServer(cfg.Server.HTTP.Addr, eng, cfg.Engine.Refresh.WaitTimeout.ToDuration(), logger)
	if cfg.Server.HTTP.TLS.Enabled {
		server.EnableTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Stop servers
		_ = server.Stop(shutdownCtx)
		if wsServer != nil {
			wsServer.Stop()
		}
	}()

	return server.Start()
}
