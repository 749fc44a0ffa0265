package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/logging"
)

var version = "0.1.0"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "volley",
		Short:   "A session based HTTP load generator",
		Version: version,
		Long: `Volley drives many simulated users against HTTP services. Every user is a
session running a scripted scenario of sequences and steps on a shared event
loop; phases decide how many users run and for how long.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no subcommand is provided, print help
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	root.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

func initLogging(cmd *cobra.Command) error {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	file, _ := cmd.Flags().GetString("log-file")

	cfg := &logging.Config{Level: level, Format: format}
	if file != "" {
		cfg.Output = "both"
		cfg.FilePath = file
		cfg.MaxSize = 100
		cfg.MaxBackups = 3
	}
	if err := logging.Init(cfg); err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}
	return nil
}

// Execute runs the root command with the process arguments.
// This is called by main.main().
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
