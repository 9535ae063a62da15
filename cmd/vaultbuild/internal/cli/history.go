package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/history"
)

var historyFlags struct {
	limit int
	json  bool
}

var historyCmd = &cobra.Command{
	Use:   "history [vault]",
	Short: "List recent builds",
	Long: `Lists recent builds from the run log, newest first.

History is recorded by 'vaultbuild build' and 'vaultbuild watch' unless
[history] enabled = false is set in the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 10,
		"Number of builds to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	root, err := resolveVault(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	paths := resolvePaths(root, cfg)
	if !cfg.IsHistoryEnabled() {
		fmt.Fprintln(out, "Build history is disabled")
		return nil
	}
	if !fileExists(paths.history) {
		if historyFlags.json {
			return outputJSON(out, []history.Run{})
		}
		fmt.Fprintln(out, "No builds recorded yet")
		return nil
	}

	runs, err := history.Open(paths.history)
	if err != nil {
		return err
	}
	defer func() { _ = runs.Close() }()

	recent, err := runs.Recent(context.Background(), historyFlags.limit)
	if err != nil {
		return err
	}

	if historyFlags.json {
		if recent == nil {
			recent = []history.Run{}
		}
		return outputJSON(out, recent)
	}
	printHistory(out, recent)
	return nil
}

func printHistory(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No builds recorded yet")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tADDED\tUPDATED\tMOVED\tREMOVED\tCACHED\tFAILED\tNOTE")
	for _, r := range runs {
		note := ""
		switch {
		case !r.Saved:
			note = "report not saved"
		case r.ColdStart:
			note = "full build"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			r.Added, r.Updated, r.Moved, r.Removed, r.Cached, r.Failed, note)
	}
	_ = tw.Flush()
}
