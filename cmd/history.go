package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geostream/internal/loader"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent loads",
	Long:  "Displays the most recent rows of the load_log table, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		sink, closeStore, err := openStore(ctx, cfg, loader.ModeAppend)
		if err != nil {
			return err
		}
		defer closeStore()

		entries, err := sink.History(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if len(entries) == 0 {
			zap.L().Info("no loads recorded, run 'load' first")
			return nil
		}

		formatHistory(os.Stdout, entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum entries to show")
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes a tabular representation of load log entries to out.
func formatHistory(out io.Writer, entries []loader.LoadEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tDURATION\tRECORDS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t-------\t-----")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(e.ID),
			e.Source,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			(time.Duration(e.DurationMs) * time.Millisecond).Round(time.Millisecond),
			e.Records,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

// shortID keeps the first block of a uuid.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
