package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bondline/skiptrace/internal/auth"
	"github.com/bondline/skiptrace/internal/cache"
	"github.com/bondline/skiptrace/internal/enrich"
	"github.com/bondline/skiptrace/internal/ledger"
	"github.com/bondline/skiptrace/internal/monitoring"
	"github.com/bondline/skiptrace/internal/provider"
	"github.com/bondline/skiptrace/internal/resilience"
	"github.com/bondline/skiptrace/internal/store"
	"github.com/bondline/skiptrace/pkg/pdl"
	"github.com/bondline/skiptrace/pkg/whitepages"
)

// engineEnv holds the initialized store, registry, and orchestrator
// shared by the enrich/parties/suggest/serve commands.
type engineEnv struct {
	Store    store.Store
	Registry *provider.Registry
	Service  *enrich.Service
	Metrics  *monitoring.Metrics
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "skiptrace.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, provider adapters, cache, ledger, and
// the orchestrator. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	descriptors, err := provider.LoadDescriptors(cfg.Enrichment.ProvidersFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	breakers := resilience.NewBreakerSet(resilience.DefaultBreakerConfig())
	registry := provider.NewRegistry()
	for _, desc := range descriptors {
		var searcher provider.Searcher
		switch desc.ID {
		case "whitepages":
			if cfg.Whitepages.Key == "" {
				zap.L().Warn("whitepages key not set, provider disabled", zap.String("provider", desc.ID))
				continue
			}
			client := whitepages.NewClient(cfg.Whitepages.Key, whitepages.WithBaseURL(cfg.Whitepages.BaseURL))
			searcher = provider.NewWhitepagesSearcher(client, breakers.Get(desc.ID)).
				WithLimiter(rate.NewLimiter(rate.Limit(cfg.Whitepages.RPS), int(cfg.Whitepages.RPS)+1))
		case "pdl":
			if cfg.PDL.Key == "" {
				zap.L().Warn("pdl key not set, provider disabled", zap.String("provider", desc.ID))
				continue
			}
			client := pdl.NewClient(cfg.PDL.Key, pdl.WithBaseURL(cfg.PDL.BaseURL))
			searcher = provider.NewPDLSearcher(client, breakers.Get(desc.ID)).
				WithLimiter(rate.NewLimiter(rate.Limit(cfg.PDL.RPS), int(cfg.PDL.RPS)+1))
		default:
			zap.L().Warn("no adapter for provider, skipping", zap.String("provider", desc.ID))
			continue
		}
		if err := registry.Register(desc, searcher); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	if len(registry.IDs()) == 0 {
		_ = st.Close()
		return nil, eris.New("no lookup providers configured")
	}

	c, err := cache.New(cfg.Cache.Size)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	metrics := monitoring.New(nil)

	svc, err := enrich.New(enrich.Config{
		Registry:        registry,
		Cache:           c,
		Ledger:          ledger.New(st, cfg.Enrichment.Cooldown()),
		Store:           st,
		Threshold:       cfg.Enrichment.MatchThreshold,
		Roles:           auth.StaticChecker{},
		Metrics:         metrics,
		ProviderTimeout: cfg.Enrichment.ProviderTimeout(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	zap.L().Info("engine initialized",
		zap.Strings("providers", registry.IDs()),
		zap.String("store", cfg.Store.Driver),
	)

	return &engineEnv{Store: st, Registry: registry, Service: svc, Metrics: metrics}, nil
}
