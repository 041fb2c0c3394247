package main

import (
	"context"
	"flag"
	"os"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tradecore/internal/engine"
	"tradecore/internal/ops"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...any)  {}
func (emptyLogger) Debugf(string, ...any) {}
func (emptyLogger) Errorf(string, ...any) {}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("load config %s: %+v", *configPath, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "tradecore",
			ServerAddress:   cfg.PyroscopeAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Warnf("start profiler: %+v", err)
		} else {
			defer profiler.Stop()
		}
	}

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		logs.Errorf("wire engine: %+v", err)
		os.Exit(1)
	}

	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		logs.Errorf("engine run: %+v", err)
		os.Exit(1)
	}
}
