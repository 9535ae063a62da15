package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/pipeline"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
)

var statusFlags struct {
	verbose bool
	json    bool
}

var statusCmd = &cobra.Command{
	Use:   "status [vault]",
	Short: "Show what the next build would publish",
	Long: `Compares the vault against the last build report without publishing or
saving anything.

The --verbose flag lists individual changes (added, updated, moved, removed).
The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.verbose, "verbose", false,
		"Show individual file changes")
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for vaultbuild status.
type StatusOutput struct {
	UpToDate  bool               `json:"up_to_date"`
	HasReport bool               `json:"has_report"`
	Counts    pipeline.Counts    `json:"counts"`
	Changes   []pipeline.Change  `json:"changes"`
	Failures  []pipeline.Failure `json:"failures,omitempty"`
	Stats     vault.Stats        `json:"stats"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := resolveVault(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	paths := resolvePaths(root, cfg)
	builder, err := newBuilder(paths, builderOptions(paths, cfg))
	if err != nil {
		return err
	}

	sum, err := builder.Plan(context.Background())
	if err != nil {
		return fmt.Errorf("failed to plan build: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusFlags.json {
		return outputJSON(out, StatusOutput{
			UpToDate:  !sum.ColdStart && sum.Counts.Changed() == 0,
			HasReport: !sum.ColdStart,
			Counts:    sum.Counts,
			Changes:   sum.Changes,
			Failures:  sum.Failures,
			Stats:     sum.Stats,
		})
	}

	printStatus(out, root, sum, statusFlags.verbose)
	return nil
}

// changeMarkers are the per-state prefixes of verbose status lines.
var changeMarkers = map[vault.BuildState]string{
	vault.StateAdded:   "+",
	vault.StateUpdated: "~",
	vault.StateMoved:   ">",
	vault.StateRemoved: "-",
}

func printStatus(w io.Writer, root string, sum *pipeline.Summary, verbose bool) {
	if sum.ColdStart {
		fmt.Fprintln(w, "No build report found. Run 'vaultbuild build' to publish the vault.")
	}
	st := sum.Stats
	fmt.Fprintf(w, "Vault: %d notes, %d images, %d audio, %d other in %d folders\n",
		st.Text, st.Images, st.Audio, st.Unknown, st.Folders)

	c := sum.Counts
	if !sum.ColdStart && c.Changed() == 0 {
		fmt.Fprintf(w, "Output is up to date (%d files)\n", c.Cached)
		return
	}

	fmt.Fprintf(w, "Pending changes: %d added, %d updated, %d moved, %d removed (%d unchanged)\n",
		c.Added, c.Updated, c.Moved, c.Removed, c.Cached)

	if verbose {
		for _, state := range vault.States {
			marker, ok := changeMarkers[state]
			if !ok {
				continue
			}
			for _, ch := range sum.Changes {
				if ch.State == state {
					fmt.Fprintf(w, "  %s %s\n", marker, relTo(root, ch.Origin))
				}
			}
		}
	}
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  ! %s: %s\n", relTo(root, f.Path), f.Error)
	}

	fmt.Fprintln(w, "\nRun 'vaultbuild build' to publish these changes")
}
