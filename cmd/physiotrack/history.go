package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/claude/physiotrack/internal/persist"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show locally recorded set results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Ledger.Dir); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No sets recorded yet.")
				return nil
			}

			ledger, err := persist.OpenLedger(cfg.Ledger.Dir)
			if err != nil {
				return err
			}
			defer ledger.Close()

			entries, err := ledger.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sets recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tEXERCISE\tSET\tREPS\tACCURACY\tAUTO\tSTATUS")
			for _, e := range entries {
				status := string(e.Status)
				if e.Error != "" {
					status += ": " + e.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f%%\t%t\t%s\n",
					e.CreatedAt.Local().Format("Jan 02 15:04"), e.Exercise, e.SetNumber, e.Reps, e.Accuracy, e.AutoSave, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
