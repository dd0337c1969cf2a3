package commands

import (
	"errors"
	"time"

	"hwtrack-backend/internal/runlog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var runsLimit *int

func init() {
	runsLimit = runsCmd.Flags().IntP("limit", "n", 20, "How many runs to show.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs [--limit <n>]",
	Short: "Lists the most recent refreshes recorded in the run log.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadedConfig.RunLog.Dsn == "" {
			return errors.New("runLog.dsn is not configured")
		}
		log, err := runlog.Open(cmd.Context(), loadedConfig.RunLog.Dsn)
		if err != nil {
			return err
		}
		defer log.Close()

		runs, err := log.Recent(cmd.Context(), *runsLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Started", "Account", "Duration", "Outcome", "Term", "Total", "Unsubmitted", "Error"})
		for _, run := range runs {
			account := run.AccountKey
			if len(account) > 12 {
				account = account[:12]
			}
			t.AppendRow(table.Row{
				run.StartedAt.Format("2006-01-02 15:04:05"),
				account,
				run.Duration.Round(100 * time.Millisecond).String(),
				run.Outcome,
				run.TermCode,
				run.Total,
				run.Unsubmitted,
				run.Error,
			})
		}
		t.Render()
		return nil
	},
}
