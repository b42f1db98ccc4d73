// Command routerctl validates engine configurations, runs cost-quality
// optimizations against a catalog, and simulates traffic through the
// bandit pools of an engine.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Giftedx/crew-sub014/internal/application"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "routerctl",
		Short: "Inspect and exercise an adaptive selection engine",
		Long: `routerctl loads a selection engine configuration and lets you validate it,
run the cost-quality optimizer over its catalog, or simulate traffic through
its bandit pools to watch them converge.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "engine.yaml", "Engine configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(validateCmd(opts))
	rootCmd.AddCommand(optimizeCmd(opts))
	rootCmd.AddCommand(simulateCmd(opts))

	return rootCmd
}

// newLogger builds a console logger writing to stderr at the given level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// loadConfig reads and validates the configuration named by --config.
func (o *rootOptions) loadConfig(ctx context.Context) (*application.EngineConfig, error) {
	loader, err := application.NewConfigLoader()
	if err != nil {
		return nil, err
	}
	var source ports.ConfigLoader = application.NewFileSource(loader, o.configPath)
	var cfg application.EngineConfig
	if err := source.Load(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", o.configPath, err)
	}
	return &cfg, nil
}
