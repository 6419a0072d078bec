package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/puzzle-proxy/internal/config"
	"github.com/JakeFAU/puzzle-proxy/internal/logging"
)

// cli carries state shared by subcommands once PersistentPreRunE has run.
type cli struct {
	cfgPath string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "puzzleproxy",
		Short:         "Proxy daily puzzles from upstream sites with CORS enabled.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&c.cfgPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(newServeCmd(c), newFetchCmd(c))
	return cmd
}
