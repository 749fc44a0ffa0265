package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/output"
	"github.com/wesleyorama2/volley/internal/performance/config"
	"github.com/wesleyorama2/volley/internal/performance/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a benchmark configuration without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return err
			}
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			// schemas and JSON paths are only checked when compiled
			if _, err := scenario.Compile(&cfg.Scenario, cfg.DefaultBaseURL()); err != nil {
				return err
			}

			noColor, _ := cmd.Flags().GetBool("no-color")
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d phases, %d sequences\n",
				output.SuccessIcon(noColor || !output.IsTerminal(cmd.OutOrStdout())),
				args[0], len(cfg.Phases), len(cfg.Scenario.Sequences))
			return nil
		},
	}
}
