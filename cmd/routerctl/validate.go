package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Giftedx/crew-sub014/internal/application"
)

func validateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration and build an engine from it",
		Long: `Loads the configuration, runs struct and cross-reference validation, and
builds the engine to confirm every pool, arm and catalog entry is accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			engine, err := application.NewEngine(cfg, application.WithLogger(opts.logger))
			if err != nil {
				return fmt.Errorf("failed to build engine: %w", err)
			}
			opts.logger.Info("configuration valid", zap.String("path", opts.configPath))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration %q (version %s) is valid\n", cfg.Metadata.Name, cfg.Version)
			fmt.Fprintf(out, "  pools:     %d\n", len(engine.Pools()))
			fmt.Fprintf(out, "  models:    %d\n", len(cfg.Catalog))
			fmt.Fprintf(out, "  providers: %d\n", len(cfg.Preferences.Providers))
			for _, name := range engine.Pools() {
				sel, _ := engine.Pool(name)
				fmt.Fprintf(out, "  pool %s: %s, %d arms\n", name, sel.Strategy(), sel.Metrics().Arms)
			}
			return nil
		},
	}
}
