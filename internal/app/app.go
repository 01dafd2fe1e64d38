package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"skinarb/internal/config"
	"skinarb/internal/fetcher"
	"skinarb/internal/notify"
	"skinarb/internal/pricecache"
	"skinarb/internal/service"
	"skinarb/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Telegram.Enabled {
		cfg := a.Config.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newDeps(store *storage.Store) service.Deps {
	cfg := a.Config

	buff := fetcher.NewBuff(fetcher.BuffOptions{
		BaseURL:   cfg.Buff.BaseURL,
		Category:  cfg.Buff.Category,
		PageSize:  cfg.Buff.PageSize,
		Timeout:   cfg.Buff.RequestTimeout,
		UserAgent: cfg.Buff.UserAgent,
	}, a.Logger)

	cgm := fetcher.NewCSGOMarket(cfg.CSGOMarket.BaseURL, cfg.CSGOMarket.RequestTimeout, a.Logger)
	skinport := fetcher.NewSkinport(cfg.Skinport.BaseURL, cfg.Skinport.RequestTimeout, a.Logger)
	fx := fetcher.NewFXRate(fetcher.FXOptions{
		URL:     cfg.FX.BaseURL,
		Timeout: cfg.FX.RequestTimeout,
	}, a.Logger)

	return service.Deps{
		Buff:     buff,
		CGM:      pricecache.New("cgm", cfg.Cache.TTL, cgm.FetchAll, a.Logger),
		Skinport: pricecache.New("skinport", cfg.Cache.TTL, skinport.FetchAll, a.Logger),
		FX: pricecache.New("fx", cfg.FX.TTL, fx.FetchRate, a.Logger).
			Seed(decimal.NewFromFloat(cfg.FX.FallbackRate)),

		Snapshots:   store,
		Cycles:      store,
		Alerts:      store,
		Portfolio:   store,
		Credentials: store,
		Locker:      store,

		Notifier: a.newNotifier(),
	}
}

// Run executes the long-running collection and evaluation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the service")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := service.New(a.Config, a.newDeps(store), a.Logger)

	a.Logger.Info().Msg("starting collection service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("collection service stopped")
	return nil
}

// ExportOptions hold parameters for exporting one item's price history.
type ExportOptions struct {
	Item      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure a simulated alert dispatch.
type SimulateOptions struct {
	ChatID      int64
	ItemName    string
	BuffUSD     decimal.Decimal
	CGMUSD      decimal.Decimal
	SkinportUSD decimal.Decimal
	USDRUB      decimal.Decimal
}
