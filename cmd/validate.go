package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/filter"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and rules document without starting capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		doc, err := config.LoadRulesDocument(rulesFile)
		if err != nil {
			return fmt.Errorf("rules document invalid: %w", err)
		}
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("rules document invalid: %w", err)
		}

		expr := filter.BuildExpression(doc.Filters)
		if expr != "" && !filter.ValidateExpression(expr) {
			return fmt.Errorf("rules document produced an invalid BPF expression: %q", expr)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "config: ok")
		fmt.Fprintf(out, "rules document: ok (%d filters, %d port rules)\n", len(doc.Filters), len(doc.Rules))
		fmt.Fprintf(out, "capture interface: %s\n", cfg.Capture.Interface)
		return nil
	},
}
