package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nwdaf-lab/hermes/internal/agent"
	"github.com/nwdaf-lab/hermes/internal/api"
	"github.com/nwdaf-lab/hermes/internal/cache"
	"github.com/nwdaf-lab/hermes/internal/config"
	"github.com/nwdaf-lab/hermes/internal/engine"
	"github.com/nwdaf-lab/hermes/internal/metrics"
	"github.com/nwdaf-lab/hermes/internal/repo"
	"github.com/nwdaf-lab/hermes/internal/services"
	"github.com/nwdaf-lab/hermes/internal/supervisor"
)

const engineComponent = "engine"

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, withEngine bool, agentNames []string) error {
	logger.Info("starting hermes", slog.Bool("engine", withEngine), slog.Any("agents", agentNames))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	sup := supervisor.New(logger.With("component", "supervisor"), cfg.Server.GracefulTimeout)
	var closers []func(context.Context) error
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](closeCtx); err != nil {
				logger.Warn("close failed", slog.Any("error", err))
			}
		}
	}()

	reporting := repo.NewFileReportingClient(
		cfg.Clients.FileReporting.BaseURL,
		cfg.Clients.FileReporting.SubscriptionsPath,
		cfg.Clients.FileReporting.FilesPath,
		cfg.Clients.FileReporting.Timeout,
	)

	var components []supervisor.Component
	componentNames := make([]string, 0, len(agentNames)+1)
	if withEngine {
		srv, closeEngine, err := buildEngine(ctx, cfg, logger.With("component", engineComponent), reporting)
		if err != nil {
			return err
		}
		closers = append(closers, closeEngine)
		components = append(components, srv)
		componentNames = append(componentNames, engineComponent)
	}

	forwarder := repo.NewEngineClient(cfg.Clients.Engine.URL, cfg.Clients.Engine.Timeout)
	for _, name := range agentNames {
		agentCfg, _ := cfg.Agent(name)
		agentLogger := logger.With("component", name)
		a, err := agent.New(agentCfg, cfg.Clients.FileReporting.Retry, reporting, forwarder, agentLogger)
		if err != nil {
			return err
		}
		srv, err := api.NewHTTPServer(name, agentCfg.Address, api.NewAgentRouter(a, agentLogger),
			api.WithWriteTimeout(cfg.Server.AgentWriteTimeout))
		if err != nil {
			return err
		}
		components = append(components, srv)
		sup.Background(name+"-subscribe", a.Subscribe)
		componentNames = append(componentNames, name)
	}

	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv, err := api.NewHTTPServer("metrics", cfg.Server.MetricsAddress, mux)
		if err != nil {
			return err
		}
		components = append(components, srv)
	}

	if cfg.Server.OpsAddress != "" {
		ops, err := api.NewOpsServer(cfg.Server.OpsAddress, componentNames)
		if err != nil {
			return err
		}
		sup.StatusHook = ops.SetServing
		// Added first so it is the last to stop.
		sup.Add(ops)
		logger.Info("ops server listening", slog.String("address", ops.Address()))
	}
	sup.Add(components...)

	err := sup.Run(ctx)
	logger.Info("hermes stopped")
	return err
}

func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, uploader engine.FileUploader) (*api.HTTPServer, func(context.Context) error, error) {
	rules, err := engine.LoadRuleSet(cfg.Rules.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}
	logger.Info("rules loaded", slog.Int("count", rules.Len()))

	store, err := repo.NewMongoEventStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, cfg.Mongo.Timeout)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("event store index unavailable", slog.Any("error", err))
	}
	closeFn := store.Close

	opts := engine.Options{
		Window:        cfg.Engine.Window,
		Serialize:     cfg.Engine.Serialize,
		UploadTimeout: cfg.Engine.UploadTimeout,
		StoreTimeout:  cfg.Mongo.Timeout,
	}
	if cfg.Engine.Serialize && cfg.Cache.Enabled {
		provider, err := windowProvider(cfg.Cache)
		if err != nil {
			logger.Warn("redis unavailable, serializing in process only", slog.Any("error", err))
		} else {
			opts.Lock = cache.NewLock(provider, cfg.Cache.LockKey, cfg.Engine.LockTTL, logger)
			closeFn = func(ctx context.Context) error {
				_ = provider.Close()
				return store.Close(ctx)
			}
		}
	}

	eng := engine.New(rules, store, uploader, logger, opts)
	service := services.NewCorrelationService(logger, eng)
	srv, err := api.NewHTTPServer(engineComponent, cfg.Server.Address, api.NewEngineRouter(service, store.Ping, logger))
	if err != nil {
		_ = closeFn(ctx)
		return nil, nil, err
	}
	return srv, closeFn, nil
}

// windowProvider backs the shared window lock with Redis, or with an
// in-process store when no address is configured.
func windowProvider(cfg config.CacheConfig) (cache.Provider, error) {
	if cfg.Addr == "" {
		return cache.NewMemoryProvider(), nil
	}
	return cache.NewRedisProvider(cache.RedisConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
}
