// Package engine wires the trading core together: feed, bus, strategies,
// signal adapter, risk, executor and ledger.
package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/adapter"
	"tradecore/internal/broker"
	"tradecore/internal/bus"
	"tradecore/internal/executor"
	"tradecore/internal/export"
	"tradecore/internal/feed"
	"tradecore/internal/ledger"
	"tradecore/internal/ledger/store"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/strategy/manager"
	"tradecore/pkg/conn"
)

// Engine owns the components of one trading run.
type Engine struct {
	cfg ops.Config

	bus     *bus.Bus
	sim     *broker.Simulator
	ledger  *ledger.Ledger
	audit   *executor.AuditLog
	adapter *adapter.Adapter
	manager *manager.Manager
	source  feed.Source

	metricsSrv *http.Server
}

// New wires every component from the resolved configuration. Nothing runs
// until Run.
func New(ctx context.Context, cfg ops.Config) (*Engine, error) {
	eventBus := bus.New(cfg.QueueCapacity)

	var st store.Store
	switch cfg.Store.Kind {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Addr,
			Password: cfg.Store.Password,
			DB:       cfg.Store.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		st = store.NewRedis(rdb)
	default:
		st = store.NewMemory()
	}

	sim := broker.NewSimulator(cfg.Simulator)
	led := ledger.New(ctx, ledger.Config{
		BrokerName:  cfg.BrokerName,
		AccountName: cfg.AccountName,
		Strategy:    cfg.PortfolioName,
		InitialCash: cfg.Simulator.InitialCash,
	}, st)
	riskMgr := risk.NewManager(sim)

	audit, err := executor.NewAuditLog(cfg.ExportDir, cfg.QueueCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "create audit log")
	}
	exec := executor.New(sim, eventBus, audit)

	mgr := manager.New(cfg.Manager, func(sig schema.Signal) {
		if err := eventBus.Publish(ctx, sig); err != nil {
			logs.Warnf("drop signal from %s: %+v", sig.StrategyID, err)
		}
	})
	adp := adapter.New(cfg.Signals, riskMgr, eventBus, mgr.StrategyState)

	eventBus.Subscribe(schema.EventMarketTick, func(_ context.Context, e schema.Event) error {
		if tick, ok := e.(schema.MarketTick); ok {
			sim.MarkPrice(tick.Instrument, tick.Price)
		}
		return nil
	})
	eventBus.Subscribe(schema.EventMarketTick, led.OnTick)
	eventBus.Subscribe(schema.EventMarketTick, mgr.RouteMarketEvent)
	eventBus.Subscribe(schema.EventSignal, adp.OnSignal)
	eventBus.Subscribe(schema.EventOrder, exec.OnOrder)
	eventBus.Subscribe(schema.EventFill, led.OnFill)
	eventBus.Subscribe(schema.EventFill, mgr.RouteFillEvent)
	eventBus.Subscribe(schema.EventFill, adp.OnFill)

	var source feed.Source
	switch cfg.Mode {
	case ops.ModeLive:
		source = feed.NewLive(cfg.LiveURL, cfg.Instruments)
	default:
		source = feed.NewCSV(cfg.DataFile, cfg.DataDelay)
	}

	return &Engine{
		cfg:     cfg,
		bus:     eventBus,
		sim:     sim,
		ledger:  led,
		audit:   audit,
		adapter: adp,
		manager: mgr,
		source:  source,
	}, nil
}

// Run starts every component, feeds ticks until the source ends or the
// context is cancelled, then shuts down and exports the run artifacts.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.MetricsAddr != "" {
		e.serveMetrics()
	}
	if err := e.audit.Start(ctx); err != nil {
		return errors.Wrap(err, "start audit log")
	}
	if err := e.bus.Start(ctx); err != nil {
		return errors.Wrap(err, "start bus")
	}

	for _, spec := range e.cfg.Strategies {
		id, err := e.manager.AddStrategy(ctx, spec.Name, spec.Params)
		if err != nil {
			e.shutdown()
			return errors.Wrap(err, "add strategy "+spec.Name)
		}
		logs.Infof("scheduled strategy %s", id)
	}
	e.manager.StartHealthMonitor(ctx)

	logs.Infof("engine running in %s mode", e.cfg.Mode)
	err := e.source.Run(ctx, func(tick schema.MarketTick) {
		obs.EventsTotal.WithLabelValues(schema.EventMarketTick.String()).Inc()
		if err := e.bus.Publish(ctx, tick); err != nil {
			logs.Warnf("drop tick for %s: %+v", tick.Instrument, err)
		}
	})
	if err != nil && ctx.Err() == nil {
		logs.Errorf("feed stopped: %+v", err)
	}

	e.shutdown()
	return e.export()
}

// shutdown stops components in causal order: the tick queue drains so every
// replayed tick reaches the strategy queues, the manager flushes those
// queues so the final signals hit the bus, then the remaining stages drain
// signal through fill, then the audit log flushes.
func (e *Engine) shutdown() {
	e.bus.Drain(schema.EventMarketTick)
	e.manager.Stop()
	e.bus.Stop()
	if err := e.audit.Close(); err != nil {
		logs.Errorf("close audit log: %+v", err)
	}
	if e.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = e.metricsSrv.Shutdown(shutdownCtx)
	}
}

// export writes the run artifacts and logs the final portfolio summary.
func (e *Engine) export() error {
	writer, err := export.NewWriter(e.cfg.ExportDir)
	if err != nil {
		return errors.Wrap(err, "create export writer")
	}
	if _, err := writer.WriteEquityCurve(e.ledger.EquityCurve()); err != nil {
		logs.Errorf("export equity curve: %+v", err)
	}
	if _, err := writer.WriteTrades(e.ledger.Trades()); err != nil {
		logs.Errorf("export trades: %+v", err)
	}
	if _, err := writer.WriteAudit(e.audit.Records()); err != nil {
		logs.Errorf("export audit: %+v", err)
	}
	if _, err := writer.WritePositions(e.ledger.Positions()); err != nil {
		logs.Errorf("export positions: %+v", err)
	}

	if e.cfg.PostgresDSN != "" {
		if err := e.persistRun(); err != nil {
			logs.Errorf("persist run to postgres: %+v", err)
		}
	}

	e.ledger.Summary()
	return nil
}

func (e *Engine) persistRun() error {
	sink, err := export.NewPostgresSink(conn.Option{DSN: e.cfg.PostgresDSN}, uuid.NewString())
	if err != nil {
		return err
	}
	defer sink.Close()
	return sink.SaveRun(e.ledger.Trades(), e.ledger.EquityCurve())
}

func (e *Engine) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	e.metricsSrv = &http.Server{Addr: e.cfg.MetricsAddr, Handler: mux}

	go func() {
		logs.Infof("metrics listening on %s", e.cfg.MetricsAddr)
		if err := e.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("metrics server: %+v", err)
		}
	}()
}
