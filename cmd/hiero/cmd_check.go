package main

import (
	"fmt"

	"github.com/ling0322/hiero/grammar"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var defaultLabel string
	var goals []string

	cmd := &cobra.Command{
		Use:   "check grammar...",
		Short: "Check grammar files for errors, dangling and unreachable labels",
		Long: `Parse the grammar files and report:

  dangling labels, used in a source pattern but produced by no rule
  unreachable labels, produced but not used by any derivation of a goal

Goals are the ;!goal: directives of the grammar, or the --goals flag.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			problems := 0
			for _, path := range args {
				g, err := grammar.LoadGrammar(path)
				if err != nil {
					return err
				}

				checkGoals := g.Goals()
				for _, goal := range goals {
					checkGoals = append(checkGoals, grammar.Label(goal))
				}
				report := g.Labels().Check(checkGoals, grammar.Label(defaultLabel))
				fmt.Fprintf(out, "%s: %d rules, goals %v\n", path, g.NumRules(), checkGoals)
				for _, label := range report.Dangling {
					fmt.Fprintf(out, "%s: dangling label [%s]\n", path, label)
				}
				for _, label := range report.Unreachable {
					fmt.Fprintf(out, "%s: unreachable label [%s]\n", path, label)
				}
				problems += len(report.Dangling) + len(report.Unreachable)
			}
			if problems != 0 {
				return errors.Errorf("%d problems found", problems)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&defaultLabel, "default-label", "X", "label of unknown words and glue rules")
	cmd.Flags().StringSliceVar(&goals, "goals", nil, "goal labels added to the ;!goal: directives")
	return cmd
}
