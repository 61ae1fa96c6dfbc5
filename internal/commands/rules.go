package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/reconciliation"
)

func newRulesCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with matcher rules files",
	}
	cmd.AddCommand(newRulesCheckCommand(env))
	return cmd
}

func newRulesCheckCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "check <rules.yaml>",
		Short: "Validate a rules file and print the effective matcher settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := reconciliation.DefaultMatchConfig()
			if cfg, err := env.LoadConfig(); err == nil {
				// Only the environment forms the base; the file under test is overlaid below.
				cfg.ReconRulesFile = ""
				if mc, err := cfg.MatchConfig(); err == nil {
					base = mc
				}
			}
			mc, err := reconciliation.LoadRules(args[0], base)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "amount_tolerance: %s\n", mc.AmountTolerance.String())
			fmt.Fprintf(out, "date_window_days: %d\n", mc.DateWindowDays)
			fmt.Fprintf(out, "accept_threshold: %g\n", mc.AcceptThreshold)
			fmt.Fprintf(out, "fuzzy_min_runes: %d\n", mc.FuzzyMinRunes)
			fmt.Fprintf(out, "weights: amount=%g date=%g description=%g\n", mc.AmountWeight, mc.DateWeight, mc.DescriptionWeight)
			return nil
		},
	}
}
