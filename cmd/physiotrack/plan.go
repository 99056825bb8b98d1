package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/claude/physiotrack/internal/remote"
)

func planCmd() *cobra.Command {
	var (
		ailment string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Fetch and print the exercise plan for an ailment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if ailment == "" {
				ailment = cfg.Session.Ailment
			}
			if ailment == "" {
				return fmt.Errorf("--ailment is required")
			}

			client := remote.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
			plan, err := client.GetPlan(cmd.Context(), ailment)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}

			fmt.Fprintf(out, "Plan for %s", plan.Ailment)
			if plan.DifficultyLevel != "" {
				fmt.Fprintf(out, " (%s", plan.DifficultyLevel)
				if plan.DurationWeeks > 0 {
					fmt.Fprintf(out, ", %d weeks", plan.DurationWeeks)
				}
				fmt.Fprint(out, ")")
			}
			fmt.Fprintln(out)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EXERCISE\tREPS\tSETS\tREST")
			for _, ex := range plan.Exercises {
				fmt.Fprintf(w, "%s\t%d\t%d\t%ds\n", ex.Name, ex.TargetReps, ex.Sets, ex.RestSeconds)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&ailment, "ailment", "a", "", "ailment to fetch a plan for")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}
