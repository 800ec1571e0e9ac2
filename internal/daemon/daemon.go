package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/XelaNull/UsedPlus-sub003/internal/api"
	"github.com/XelaNull/UsedPlus-sub003/internal/app/engine"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/assets"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/catalog"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/clock"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/credit"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/deals"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/depreciation"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/ledger"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/market"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/notify"
	"github.com/XelaNull/UsedPlus-sub003/internal/infra/sqlite"
)

// Daemon owns the assembled simulation host. Everything is built in New and
// idle until Run; offline drivers can skip Run and use Engine directly.
type Daemon struct {
	cfg Config
	log *logrus.Logger

	store *sqlite.Store
	eng   *engine.Engine
	sched *clock.Scheduler
	http  *http.Server
}

// New assembles the world from configuration: ledger, registry, bureau,
// deal book, broker, optional catalog and persistence, notification sinks,
// the engine, the HTTP server, and the tick scheduler.
func New(cfg Config) (*Daemon, error) {
	log := newLogger(cfg.Log)

	bank := ledger.NewBank()
	registry := assets.NewRegistry()
	bureau := credit.NewBureau(credit.Config{TrendWindow: cfg.Credit.TrendWindow})
	book := deals.NewBook(deals.Config{
		MinDealAmount:         parseMoney(cfg.Deals.MinDealAmount, decimal.NewFromInt(1000)),
		BaseAnnualRate:        cfg.Deals.BaseAnnualRate,
		LeaseResidualFraction: cfg.Deals.LeaseResidualFraction,
		DefaultThreshold:      cfg.Deals.DefaultThreshold,
	}, bank, registry, bureau)
	broker := market.NewBroker(market.Config{
		OfferExpiryHours:  cfg.Market.OfferExpiryHours,
		MaxOfferRetries:   cfg.Market.MaxOfferRetries,
		EarlySearchChance: cfg.Market.EarlySearchChance,
	}, bank, registry, depreciation.NewModel())

	var cat *catalog.Catalog
	if cfg.Catalog.Path != "" {
		var err error
		cat, err = catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		log.WithField("items", cat.Len()).Info("equipment catalog loaded")
	}

	var store *sqlite.Store
	if cfg.Storage.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0700); err != nil {
			return nil, fmt.Errorf("storage directory: %w", err)
		}
		var err error
		store, err = sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	// The email sink resolves addresses through the engine, which takes the
	// notifier as a dependency. The closure breaks the cycle; deliveries
	// only start once the engine is live.
	var eng *engine.Engine
	sinks := []notify.Sink{notify.NewLogSink(log)}
	if cfg.Notify.Email.Enabled {
		sinks = append(sinks, notify.NewEmailSink(notify.EmailConfig{
			Host:     cfg.Notify.Email.Host,
			Port:     cfg.Notify.Email.Port,
			Username: cfg.Notify.Email.Username,
			Password: cfg.Notify.Email.Password,
			From:     cfg.Notify.Email.From,
		}, func(accountID string) (string, bool) {
			if eng == nil {
				return "", false
			}
			return eng.AccountEmail(accountID)
		}))
	}
	if cfg.Notify.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(cfg.Notify.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		sinks = append(sinks, notify.NewTelegramSink(bot, cfg.Notify.Telegram.ChatID))
	}

	deps := engine.Deps{
		Log:      log,
		Book:     book,
		Broker:   broker,
		Bureau:   bureau,
		Ledger:   bank,
		Assets:   registry,
		Catalog:  cat,
		Notifier: notify.NewFanout(log, sinks...),
	}
	if store != nil {
		deps.Store = store
	}
	eng = engine.New(engine.Config{HoursPerMonth: cfg.Engine.HoursPerMonth}, deps)

	if store != nil {
		snap, err := store.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("restore state: %w", err)
		}
		eng.Restore(snap)
		log.WithFields(logrus.Fields{
			"tick":     snap.Tick,
			"accounts": len(snap.Accounts),
			"deals":    len(snap.Deals),
		}).Info("state restored")
	}

	srv := api.NewServer(api.Config{
		JWTSecret:      cfg.API.JWTSecret,
		TokenTTL:       parseDuration(cfg.API.TokenTTL, 24*time.Hour),
		AdminKey:       cfg.API.AdminKey,
		RequestTimeout: parseDuration(cfg.API.RequestTimeout, 60*time.Second),
		Metrics:        cfg.API.Metrics,
	}, log, eng)

	sched := clock.NewScheduler(clock.Config{
		Interval:    parseDuration(cfg.Clock.Interval, 2*time.Second),
		FireTimeout: parseDuration(cfg.Clock.FireTimeout, 30*time.Second),
	}, log, eng)

	return &Daemon{
		cfg:   cfg,
		log:   log,
		store: store,
		eng:   eng,
		sched: sched,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Engine exposes the assembled engine for offline drivers such as the
// simulate command.
func (d *Daemon) Engine() *engine.Engine { return d.eng }

// Log exposes the configured logger.
func (d *Daemon) Log() *logrus.Logger { return d.log }

// Run starts the scheduler and serves the API until ctx is cancelled or the
// listener fails, then shuts everything down.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.Clock.Enabled {
		if err := d.sched.Start(); err != nil {
			return err
		}
	}

	errc := make(chan error, 1)
	go func() {
		d.log.WithField("addr", d.http.Addr).Info("api listening")
		if err := d.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		d.log.Info("shutdown requested")
	case serveErr = <-errc:
		d.log.WithError(serveErr).Error("api server failed")
	}

	if err := d.Close(); serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Close tears the host down: HTTP drain, scheduler stop, final clock
// position save, store close.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var firstErr error
	if err := d.http.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if d.sched.Running() {
		if err := d.sched.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.store != nil {
		if err := d.store.SaveTick(d.eng.LastTick()); err != nil {
			d.log.WithError(err).Warn("final tick save failed")
		}
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.log.Info("daemon stopped")
	return firstErr
}

// newLogger builds the process logger from config. Unknown levels fall back
// to info rather than failing startup.
func newLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
