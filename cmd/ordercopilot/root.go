package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/config"
	"github.com/dusk-indust/ordercopilot/internal/logging"
	"github.com/dusk-indust/ordercopilot/internal/mcptools"
	"github.com/dusk-indust/ordercopilot/internal/orchestrator"
)

// app is the state shared by every subcommand once the config is loaded.
type app struct {
	configDir string
	logLevel  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	orchestrator.Version = version
	mcptools.Version = version

	root := &cobra.Command{
		Use:           "ordercopilot",
		Short:         "Customer support copilot built from cooperating A2A agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "directory holding ordercopilot.yml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newChatCmd(a),
		newAskCmd(a),
		newAgentCardCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Log)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
