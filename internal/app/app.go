// Package app composes configuration, infrastructure, and the Telegram
// front-end into a runnable bot.
package app

import (
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"finflow/core/bootstrap"
	"finflow/core/cmd"
	coreconfig "finflow/core/config"
	"finflow/core/httpx"
	"finflow/core/logger"
	coretelegram "finflow/core/telegram"
	"finflow/core/telegram/middleware"
	"finflow/core/telegram/router"
	"finflow/internal/cache"
	"finflow/internal/catalog"
	"finflow/internal/ledger"
	"finflow/internal/screens"
	"finflow/internal/snapshot"

	"context"
	"log/slog"
)

// App holds the assembled application graph.
type App struct {
	cfg     *coreconfig.Config
	handler *screens.Handler
}

type configCarrier struct {
	cfg *coreconfig.Config
}

func (c configCarrier) CoreConfig() *coreconfig.Config { return c.cfg }

// LoadConfig reads the YAML config for the cmd runner.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return configCarrier{cfg: cfg}, nil
}

// Bootstrap builds the full application from loaded configuration.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	httpClient := httpx.BuildClient()

	durable, err := durableCacheStore(cfg, infra)
	if err != nil {
		return nil, err
	}

	catalogClient := catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, httpClient, catalog.TTLs{
		Accounts:   time.Duration(cfg.Cache.AccountsTTLSeconds) * time.Second,
		Categories: time.Duration(cfg.Cache.CategoriesTTLSeconds) * time.Second,
		Rates:      time.Duration(cfg.Cache.RatesTTLSeconds) * time.Second,
		Balances:   time.Duration(cfg.Cache.BalancesTTLSeconds) * time.Second,
	}, durable)

	signer := ledger.NewSigner(cfg.Ledger.APIKey, cfg.Ledger.HostSecret)
	if !signer.Configured() {
		logger.Ledger.Warn("ledger.auth",
			slog.String("event", "not_configured"),
			slog.String("mode", "read_only"),
		)
	}
	ledgerClient := ledger.NewClient(cfg.Ledger.BaseURL, httpClient, signer)

	ledgerService := ledger.NewService(ledgerClient, ledger.ServiceOptions{
		SettlementCurrency: cfg.Ledger.SettlementCurrency,
		VerifyWrites:       cfg.Ledger.VerifyWritesEnabled(),
		VerifyAttempts:     cfg.Ledger.VerifyAttempts,
		VerifyDelay:        cfg.Ledger.VerifyDelay(),
		Refresher:          catalogClient,
	})

	snapStore, err := snapshotStore(cfg, infra)
	if err != nil {
		return nil, err
	}

	handler := screens.New(screens.Options{
		Catalog:            catalogClient,
		Ledger:             ledgerService,
		Snapshots:          snapStore,
		AdminID:            cfg.Telegram.AdminID,
		SettlementCurrency: cfg.Ledger.SettlementCurrency,
	})

	return &App{cfg: cfg, handler: handler}, nil
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg }

// TelegramRunOptions assembles the bot wiring for coretelegram.RunTelegram.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.handler.Register(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.handler, reg, router.TextOptions{
		UnknownDocument: a.handler.UnknownDocument(),
	})...)

	middlewares := []coretelegram.Middleware{
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	}
	if a.cfg.RateLimit.IntervalMS > 0 {
		exclude := make(map[string]struct{}, len(a.cfg.RateLimit.ExcludeUpdates))
		for _, u := range a.cfg.RateLimit.ExcludeUpdates {
			exclude[u] = struct{}{}
		}
		middlewares = append(middlewares, coretelegram.Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval: time.Duration(a.cfg.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:  exclude,
			}),
		})
	}

	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.handler.Attach(rt.Bot)
			return nil
		},
	}, nil
}

func durableCacheStore(cfg *coreconfig.Config, infra *bootstrap.Result) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case coreconfig.CacheMemory:
		return nil, nil
	case coreconfig.CacheFile:
		return cache.OpenFileStore(cfg.Cache.Path)
	case coreconfig.CachePostgres:
		if infra.DB == nil {
			return nil, fmt.Errorf("app: cache backend %q requires a database", cfg.Cache.Backend)
		}
		return cache.NewPostgresStore(infra.DB), nil
	case coreconfig.CacheRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedisStore(client, "finflow", 24*time.Hour), nil
	default:
		return nil, fmt.Errorf("app: unknown cache backend %q", cfg.Cache.Backend)
	}
}

func snapshotStore(cfg *coreconfig.Config, infra *bootstrap.Result) (snapshot.Store, error) {
	switch cfg.Snapshot.Backend {
	case coreconfig.SnapshotOff:
		return nil, nil
	case coreconfig.SnapshotFile:
		return snapshot.OpenFileStore(cfg.Snapshot.Path)
	case coreconfig.SnapshotPostgres:
		if infra.DB == nil {
			return nil, fmt.Errorf("app: snapshot backend %q requires a database", cfg.Snapshot.Backend)
		}
		return snapshot.NewPostgresStore(infra.DB), nil
	default:
		return nil, fmt.Errorf("app: unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}
