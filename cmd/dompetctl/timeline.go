package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dompet/internal/api"
	"dompet/internal/cli"
	"dompet/internal/core"
	"dompet/internal/timeline"
)

func timelineCmd() *cobra.Command {
	var (
		date    string
		asJSON  bool
		allDays bool
	)

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show stored insights grouped by day",
		Example: `
dompetctl timeline
dompetctl timeline --date 2024-03-10
dompetctl timeline --all --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			b, cleanup, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			list, err := b.ListAIResponses(ctx)
			if err != nil {
				return fmt.Errorf("list insights: %w", err)
			}
			if asJSON {
				return writeTimelineJSON(cmd.OutOrStdout(), list)
			}

			view := timeline.NewView(core.AIResponseRecords(list))
			if date != "" {
				if err := view.Select(date); err != nil {
					return fmt.Errorf("%s: %w", date, err)
				}
			}
			return printTimeline(cmd.OutOrStdout(), view, allDays, cfg.Location())
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to show (YYYY-MM-DD, default: most recent)")
	cmd.Flags().BoolVar(&allDays, "all", false, "Show every day")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the API listing as JSON")
	return cmd
}

func writeTimelineJSON(w io.Writer, list []core.AIResponse) error {
	view := timeline.NewView(core.AIResponseRecords(list))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(api.AIResponseTimeline{
		AIResponseList: api.AIResponseList{AIResponses: api.FromAIResponses(list)},
		Groups:         view.Groups(),
		Dates:          view.Index(),
	})
}

// printTimeline writes the date index followed by the selected day, or by
// every day when all is set.
func printTimeline(w io.Writer, view timeline.View, all bool, loc *time.Location) error {
	if view.Empty() {
		_, err := fmt.Fprintln(w, "No insights yet.")
		return err
	}

	fmt.Fprint(w, "Dates:")
	for _, key := range view.Index() {
		recs, _ := view.Groups().Get(key)
		fmt.Fprintf(w, " %s (%d)", key, len(recs))
	}
	fmt.Fprintln(w)

	days := []string{view.SelectedDate()}
	if all {
		days = view.Index()
	}
	for _, key := range days {
		recs, _ := view.Groups().Get(key)
		fmt.Fprintf(w, "\n== %s ==\n", key)
		for _, r := range recs {
			if _, err := fmt.Fprintf(w, "[%s] %s\n", clock(r.Timestamp, loc), r.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

func clock(timestamp string, loc *time.Location) string {
	t, err := api.ParseTime(timestamp)
	if err != nil {
		return "--:--:--"
	}
	return t.In(loc).Format("15:04:05")
}
