package app

import (
	"context"
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/flightpeer/internal/flightagent/report"
	"github.com/autopeer-io/flightpeer/pkg/options"
)

const historyTimeFormat = "2006-01-02 15:04:05"

func newHistoryCommand() *cobra.Command {
	journal := options.NewJournalOptions()
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List past sessions, or show one in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := report.OpenJournal(journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if len(args) == 1 {
				r, err := j.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("session %s: %w", args[0], err)
				}
				return report.NewConsole(cmd.OutOrStdout()).Report(ctx, r)
			}

			entries, err := j.List(ctx, limit)
			if err != nil {
				return err
			}
			table := uitable.New()
			table.MaxColWidth = 48
			table.AddRow("ID", "STARTED", "UTTERANCE", "OUTCOME", "FAILURE", "EXECUTED")
			for _, e := range entries {
				table.AddRow(e.ID, e.StartedAt.Local().Format(historyTimeFormat), e.Utterance, e.Outcome, e.Failure, e.Executed)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&journal.Path, "journal.path", journal.Path, "Path of the session journal database.")
	fs.IntVar(&limit, "limit", 20, "Maximum number of sessions to list, newest first. Zero lists all.")
	return cmd
}
