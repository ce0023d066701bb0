package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quantcore/internal/config"
	"quantcore/internal/engine"
	"quantcore/internal/logger"

	_ "quantcore/docs"
)

const version = "0.1.0"

var (
	cfgPath string
	envOnly bool
)

var rootCmd = &cobra.Command{
	Use:           "engine",
	Short:         "Event-driven trading engine: backtest replay and live execution",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine("")
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay stored bars through the engine in lockstep",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(config.ModeBacktest)
	},
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run against the live market-data feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(config.ModeLive)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("engine version %s\n", version)
	},
}

func init() {
	defaultCfg := os.Getenv("QC_CONFIG")
	if defaultCfg == "" {
		defaultCfg = "config/config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&envOnly, "env-only", false, "skip the config file and read settings from QC_* env vars")
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runEngine(modeOverride config.Mode) error {
	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if modeOverride != "" {
		cfg.Engine.Mode = modeOverride
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.App.Name,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            map[string]string{"env": cfg.App.Env},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Warn("pyroscope start failed", zap.Error(err))
		} else {
			defer profiler.Stop()
		}
	}

	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("engine starting",
		zap.String("mode", string(cfg.Engine.Mode)),
		zap.String("strategy", cfg.Engine.Strategy),
		zap.Int("instruments", len(cfg.Instruments)),
	)
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
