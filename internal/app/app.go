// Package app assembles the pipeline: every component is an explicit,
// constructor-injected instance owned here for the life of the process.
package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"riptide/internal/bridge"
	"riptide/internal/config"
	"riptide/internal/events"
	"riptide/internal/exchange"
	binanceex "riptide/internal/exchange/binance"
	"riptide/internal/exchange/paper"
	"riptide/internal/feed"
	"riptide/internal/logger"
	"riptide/internal/order"
	"riptide/internal/position"
	"riptide/internal/risk"
	"riptide/internal/store"
	httpapi "riptide/internal/transport/http"
)

type App struct {
	cfg *config.Config

	bus     *events.Bus
	ledger  *position.Ledger
	window  *feed.Window
	engine  *order.Engine
	riskMgr *risk.Manager
	bridge  *bridge.Bridge
	httpSrv *httpapi.Server
	journal *store.Journal
	db      *store.Store
	watcher *config.LimitsWatcher
	md      feed.Feed
}

// New builds the application from config without starting anything.
// cfgPath enables hot reload of the risk limits; empty disables it.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	a := &App{
		cfg:    cfg,
		bus:    events.NewBus(),
		ledger: position.NewLedger(cfg.Trading.InitialBalance),
		window: feed.NewWindow(256),
		engine: order.NewEngine(order.Config{
			SlippageRate:   cfg.Trading.SlippageRate,
			CommissionRate: cfg.Trading.CommissionRate,
		}),
	}

	submitter, quoteSink, md, err := a.buildExchange()
	if err != nil {
		return nil, err
	}
	a.md = md

	a.riskMgr = risk.NewManager(risk.Options{
		Ledger:  a.ledger,
		History: a.window,
		Bus:     a.bus,
		Limits:  cfg.Risk,
	})

	a.bridge = bridge.New(bridge.Options{
		Trading:   cfg.Trading,
		Risk:      a.riskMgr,
		Orders:    a.engine,
		Ledger:    a.ledger,
		Submitter: submitter,
		Bus:       a.bus,
		Window:    a.window,
		QuoteSink: quoteSink,
	})
	a.riskMgr.SetOrderRequester(a.bridge.RequestClose)

	if cfg.Storage.Enabled {
		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.db = db
		a.journal = store.NewJournal(db, a.bus)
	}

	a.httpSrv, err = httpapi.NewServer(httpapi.Config{
		Addr:    cfg.App.HTTPAddr,
		Bridge:  a.bridge,
		Risk:    a.riskMgr,
		Orders:  a.engine,
		Ledger:  a.ledger,
		History: a.db,
	})
	if err != nil {
		return nil, err
	}

	if cfgPath != "" {
		w, err := config.NewLimitsWatcher(cfgPath, cfg.Risk)
		if err != nil {
			logger.Warnf("risk limits hot reload disabled: %v", err)
		} else {
			w.OnChange(a.riskMgr.UpdateBaseLimits)
			a.watcher = w
		}
	}
	return a, nil
}

func (a *App) buildExchange() (exchange.Submitter, func(string, float64), feed.Feed, error) {
	switch strings.ToLower(strings.TrimSpace(a.cfg.Exchange.Backend)) {
	case "binance":
		adapter, err := binanceex.New(binanceex.Config{
			APIKey:      a.cfg.Exchange.APIKey,
			APISecret:   a.cfg.Exchange.APISecret,
			Testnet:     a.cfg.Exchange.Testnet,
			HTTPTimeout: a.cfg.Exchange.Timeout(),
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return adapter, nil, binanceex.NewFeed(a.cfg.Exchange.Testnet), nil
	default:
		exec := paper.New(paper.Config{
			SlippageRate:   a.cfg.Trading.SlippageRate,
			CommissionRate: a.cfg.Trading.CommissionRate,
		})
		return exec, exec.OnTick, paper.NewFeed(nil, 0), nil
	}
}

// Run starts every component and blocks until the context is cancelled or
// a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.bridge.Run(ctx) })
	g.Go(func() error { return a.riskMgr.Run(ctx) })
	g.Go(func() error { return a.httpSrv.Run(ctx) })
	if a.journal != nil {
		g.Go(func() error { return a.journal.Run(ctx) })
	}
	g.Go(func() error { return a.pumpTicks(ctx) })

	logger.Infof("riptide running: env=%s backend=%s symbols=%s",
		a.cfg.App.Env, a.cfg.Exchange.Backend, strings.Join(a.cfg.Trading.Symbols, ","))

	err := g.Wait()
	a.close()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// pumpTicks drives market data into the bridge. A stalled feed only stops
// mark-price updates; the monitoring loops keep their own clocks.
func (a *App) pumpTicks(ctx context.Context) error {
	ticks, err := a.md.Subscribe(ctx, a.cfg.Trading.Symbols)
	if err != nil {
		return fmt.Errorf("subscribe market data: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			a.bridge.OnTick(t)
		}
	}
}

// Bridge exposes the execution bridge for embedding and tests.
func (a *App) Bridge() *bridge.Bridge { return a.bridge }

func (a *App) close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			logger.Warnf("limits watcher close: %v", err)
		}
	}
	a.bus.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warnf("journal close: %v", err)
		}
	}
}
