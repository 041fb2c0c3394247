// Package ops loads and validates the runtime configuration.
package ops

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/adapter"
	"tradecore/internal/broker"
	"tradecore/internal/strategy"
	"tradecore/internal/strategy/manager"
)

// Mode selects the tick source.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Mode          string           `json:"mode"`
	BrokerName    string           `json:"broker_name"`
	AccountName   string           `json:"account_name"`
	PortfolioName string           `json:"portfolio_name"`
	Broker        BrokerConfig     `json:"broker"`
	Data          DataConfig       `json:"data"`
	Queue         QueueConfig      `json:"queue"`
	Strategies    []StrategyConfig `json:"strategies"`
	Manager       ManagerConfig    `json:"manager"`
	Signals       SignalConfig     `json:"signals"`
	Store         StoreConfig      `json:"store"`
	Export        ExportConfig     `json:"export"`
	Metrics       MetricsConfig    `json:"metrics"`
	Profiler      ProfilerConfig   `json:"profiler"`
}

// BrokerConfig tunes the execution simulator.
type BrokerConfig struct {
	SlippagePercent float64 `json:"slippage_percent"`
	FillProbability float64 `json:"fill_probability"`
	Brokerage       float64 `json:"brokerage"`
	InitialCash     float64 `json:"initial_cash"`
}

// DataConfig selects the tick source parameters. File and DelayMS apply to
// backtest mode, URL and Instruments to live mode.
type DataConfig struct {
	File        string   `json:"file"`
	DelayMS     int      `json:"delay_ms"`
	URL         string   `json:"url"`
	Instruments []string `json:"instruments"`
}

// QueueConfig bounds the event bus.
type QueueConfig struct {
	Capacity int `json:"capacity"`
}

// StrategyConfig is one scheduled strategy and its parameters.
type StrategyConfig struct {
	Name   string          `json:"name"`
	Params strategy.Params `json:"params"`
}

// ManagerConfig bounds the strategy manager.
type ManagerConfig struct {
	MaxConcurrent    int `json:"max_concurrent"`
	MaxErrors        int `json:"max_errors"`
	QueueCapacity    int `json:"queue_capacity"`
	HeartbeatSeconds int `json:"heartbeat_seconds"`
	StalenessSeconds int `json:"staleness_seconds"`
}

// SignalConfig bounds the signal adapter.
type SignalConfig struct {
	MaxQuantity      int64   `json:"max_quantity"`
	MaxPerMinute     int     `json:"max_per_minute"`
	HistoryLimit     int     `json:"history_limit"`
	RetentionMinutes int     `json:"retention_minutes"`
	MaxConcentration float64 `json:"max_concentration"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// StoreConfig selects ledger persistence. Kind is memory or redis.
type StoreConfig struct {
	Kind          string `json:"kind"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

// ExportConfig selects the artifact sinks.
type ExportConfig struct {
	Dir         string `json:"dir"`
	PostgresDSN string `json:"postgres_dsn"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// ProfilerConfig enables continuous profiling when ServerAddress is set.
type ProfilerConfig struct {
	ServerAddress string `json:"server_address"`
}

// StrategySpec is a resolved strategy entry.
type StrategySpec struct {
	Name   string
	Params strategy.Params
}

// StoreSpec is the resolved persistence selection.
type StoreSpec struct {
	Kind     string
	Addr     string
	Password string
	DB       int
}

// Config is the resolved configuration ready for wiring.
type Config struct {
	Mode          Mode
	BrokerName    string
	AccountName   string
	PortfolioName string

	Simulator     broker.SimulatorConfig
	DataFile      string
	DataDelay     time.Duration
	LiveURL       string
	Instruments   []string
	QueueCapacity int

	Strategies []StrategySpec
	Manager    manager.Config
	Signals    adapter.Config
	Store      StoreSpec

	ExportDir     string
	PostgresDSN   string
	MetricsAddr   string
	PyroscopeAddr string
}

// Load reads a JSON config file and resolves it. Invalid configuration
// fails here so the engine never starts half-wired.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	var file FileConfig
	if err := sonic.Unmarshal(data, &file); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return resolve(file)
}

func resolve(file FileConfig) (Config, error) {
	cfg := Config{
		Mode:          Mode(file.Mode),
		BrokerName:    file.BrokerName,
		AccountName:   file.AccountName,
		PortfolioName: file.PortfolioName,
		Simulator: broker.SimulatorConfig{
			AccountName:     file.AccountName,
			SlippagePercent: file.Broker.SlippagePercent,
			FillProbability: file.Broker.FillProbability,
			Brokerage:       decimal.NewFromFloat(file.Broker.Brokerage),
			InitialCash:     decimal.NewFromFloat(file.Broker.InitialCash),
		},
		DataFile:      file.Data.File,
		DataDelay:     time.Duration(file.Data.DelayMS) * time.Millisecond,
		LiveURL:       file.Data.URL,
		Instruments:   file.Data.Instruments,
		QueueCapacity: file.Queue.Capacity,
		Manager: manager.Config{
			MaxConcurrent:     file.Manager.MaxConcurrent,
			MaxErrors:         file.Manager.MaxErrors,
			QueueCapacity:     file.Manager.QueueCapacity,
			HeartbeatInterval: time.Duration(file.Manager.HeartbeatSeconds) * time.Second,
			StalenessTimeout:  time.Duration(file.Manager.StalenessSeconds) * time.Second,
		},
		Signals: adapter.Config{
			MaxQuantity:      file.Signals.MaxQuantity,
			MaxPerMinute:     file.Signals.MaxPerMinute,
			HistoryLimit:     file.Signals.HistoryLimit,
			RateRetention:    time.Duration(file.Signals.RetentionMinutes) * time.Minute,
			MaxConcentration: decimal.NewFromFloat(file.Signals.MaxConcentration),
			MaxDrawdown:      decimal.NewFromFloat(file.Signals.MaxDrawdown),
		},
		Store: StoreSpec{
			Kind:     file.Store.Kind,
			Addr:     file.Store.RedisAddr,
			Password: file.Store.RedisPassword,
			DB:       file.Store.RedisDB,
		},
		ExportDir:     file.Export.Dir,
		PostgresDSN:   file.Export.PostgresDSN,
		MetricsAddr:   file.Metrics.Addr,
		PyroscopeAddr: file.Profiler.ServerAddress,
	}

	switch cfg.Mode {
	case ModeBacktest:
		if cfg.DataFile == "" {
			return Config{}, errors.New("backtest mode requires data.file")
		}
	case ModeLive:
		if cfg.LiveURL == "" {
			return Config{}, errors.New("live mode requires data.url")
		}
		if len(cfg.Instruments) == 0 {
			return Config{}, errors.New("live mode requires data.instruments")
		}
	default:
		return Config{}, errors.Errorf("unknown mode %q", file.Mode)
	}

	if cfg.BrokerName == "" {
		cfg.BrokerName = "sim"
	}
	if cfg.PortfolioName == "" {
		cfg.PortfolioName = "portfolio"
	}
	if cfg.AccountName == "" {
		return Config{}, errors.New("account_name is required")
	}
	if !cfg.Simulator.InitialCash.IsPositive() {
		return Config{}, errors.New("broker.initial_cash must be positive")
	}

	if len(file.Strategies) == 0 {
		return Config{}, errors.New("at least one strategy is required")
	}
	for _, s := range file.Strategies {
		if !strategy.Registered(s.Name) {
			return Config{}, errors.Errorf("unknown strategy %q", s.Name)
		}
		cfg.Strategies = append(cfg.Strategies, StrategySpec{Name: s.Name, Params: s.Params})
	}

	switch cfg.Store.Kind {
	case "", "memory":
		cfg.Store.Kind = "memory"
	case "redis":
		if cfg.Store.Addr == "" {
			return Config{}, errors.New("redis store requires store.redis_addr")
		}
	default:
		return Config{}, errors.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	if cfg.ExportDir == "" {
		cfg.ExportDir = "exports"
	}
	return cfg, nil
}
