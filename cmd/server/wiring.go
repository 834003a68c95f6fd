package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mfetl/internal/audit"
	"mfetl/internal/enrichment"
	"mfetl/internal/enrichment/cache"
	enrichhandler "mfetl/internal/enrichment/handler"
	enrichmetrics "mfetl/internal/enrichment/metrics"
	"mfetl/internal/platform/config"
	"mfetl/internal/platform/metrics"
	"mfetl/internal/platform/postgres"
	"mfetl/internal/platform/redis"
	"mfetl/internal/provider/holdings"
	"mfetl/internal/registry"
	registryhandler "mfetl/internal/registry/handler"
	registrymetrics "mfetl/internal/registry/metrics"
	"mfetl/internal/registry/store"
	"mfetl/internal/resolver"
	resolvermetrics "mfetl/internal/resolver/metrics"
	httptransport "mfetl/internal/transport/http"
	"mfetl/pkg/platform/circuit"
	"mfetl/pkg/platform/retry"
)

// eventQueueSize bounds enrichment events awaiting delivery to Kafka.
const eventQueueSize = 256

type application struct {
	router   http.Handler
	registry *registry.Holder
	events   *audit.Worker
	closers  []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	app := &application{}

	res, err := resolver.Load(cfg.Resolver.RulesFile, cfg.Resolver.FuzzyThreshold)
	if err != nil {
		return nil, err
	}

	snapshotStore, err := snapshotStore(ctx, cfg, log, app)
	if err != nil {
		app.close()
		return nil, err
	}
	source := registry.NewSource(cfg.Registry.File, cfg.Registry.URL, cfg.Registry.RequestTimeout, cfg.Registry.RatePerSecond, log)
	app.registry = registry.NewHolder(source,
		registry.WithStore(snapshotStore),
		registry.WithMetrics(registrymetrics.New()),
		registry.WithLogger(log),
	)
	if _, err := app.registry.Refresh(ctx); err != nil {
		// Requests retry the refresh until the registry is reachable.
		log.Warn("initial registry load failed", "error", err)
	}

	enrichCache, err := enrichmentCache(ctx, cfg, log, app)
	if err != nil {
		app.close()
		return nil, err
	}

	publisher, err := eventPublisher(cfg, log, app)
	if err != nil {
		app.close()
		return nil, err
	}

	resolutions := resolvermetrics.New()
	svc, err := enrichment.New(res, app.registry, holdingsProvider(cfg, log),
		enrichment.WithCache(enrichCache),
		enrichment.WithPublisher(publisher),
		enrichment.WithMetrics(enrichmetrics.New()),
		enrichment.WithResolverMetrics(resolutions),
		enrichment.WithLogger(log),
		enrichment.WithSettings(enrichment.Settings{
			MaxConcurrent:     cfg.Enrichment.MaxConcurrent,
			PerFundTimeout:    cfg.Timeouts.PerFundTimeoutDuration(),
			EnrichmentTimeout: cfg.Timeouts.EnrichmentTimeoutDuration(),
			Retry: retry.Config{
				MaxAttempts: cfg.Enrichment.RetryAttempts,
				BaseDelay:   cfg.Enrichment.RetryBaseDelay,
				MaxDelay:    cfg.Enrichment.RetryMaxDelay,
				Multiplier:  2,
			},
			CacheTTL: cfg.Enrichment.CacheTTL(),
		}),
	)
	if err != nil {
		app.close()
		return nil, err
	}

	app.router = httptransport.NewRouter(httptransport.Deps{
		Logger:  log,
		Metrics: metrics.New(),
		Ready:   app.registry.Ready,
		Modules: []httptransport.Registrar{
			registryhandler.New(res, app.registry, log, resolutions),
			enrichhandler.New(svc, log),
		},
	})
	return app, nil
}

func snapshotStore(ctx context.Context, cfg config.Config, log *slog.Logger, app *application) (registry.SnapshotStore, error) {
	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if db == nil {
		log.Info("registry snapshots kept in memory")
		return store.NewMemory(), nil
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	pg := store.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure registry schema: %w", err)
	}
	log.Info("registry snapshots persisted to postgres")
	return pg, nil
}

func enrichmentCache(ctx context.Context, cfg config.Config, log *slog.Logger, app *application) (enrichment.Cache, error) {
	if !cfg.Enrichment.CacheEnabled {
		log.Info("enrichment cache disabled")
		return nil, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		return cache.NewMemory(nil), nil
	}
	app.closers = append(app.closers, func() { _ = client.Close() })
	log.Info("enrichment cache backed by redis")
	return cache.NewRedis(client.Client), nil
}

func eventPublisher(cfg config.Config, log *slog.Logger, app *application) (enrichment.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewLogPublisher(log), nil
	}
	kafka, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, kafka.Close)
	app.events = audit.NewWorker(kafka, eventQueueSize, log)
	log.Info("enrichment events published to kafka", "topic", cfg.Kafka.Topic)
	return app.events, nil
}

func holdingsProvider(cfg config.Config, log *slog.Logger) enrichment.HoldingsProvider {
	if cfg.Holdings.BaseURL == "" {
		log.Warn("holdings provider not configured, funds are enriched from the registry only")
		return holdings.Unconfigured{}
	}
	return holdings.New(cfg.Holdings.BaseURL,
		holdings.WithHTTPClient(&http.Client{Timeout: cfg.Holdings.RequestTimeout}),
		holdings.WithAPIKey(cfg.Holdings.APIKey),
		holdings.WithTopN(cfg.Holdings.TopN),
		holdings.WithRateLimit(cfg.Holdings.RatePerSecond, cfg.Holdings.Burst),
		holdings.WithBreaker(circuit.New(holdings.ProviderID)),
		holdings.WithLogger(log),
	)
}
