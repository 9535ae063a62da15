package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/pipeline"
	"github.com/albertocavalcante/vaultbuild/internal/log"
)

var buildFlags struct {
	out    string
	dryRun bool
	json   bool
	force  bool
}

var buildCmd = &cobra.Command{
	Use:   "build [vault]",
	Short: "Build the vault into the output directory",
	Long: `Builds the vault incrementally.

Files are compared against the report of the previous build. Only added,
updated and moved files are copied; removed files are deleted from the output.
A build without a report, or with --force, publishes everything.

The --dry-run flag shows what would be published without writing anything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildFlags.out, "out", "",
		"Output directory (overrides config)")
	buildCmd.Flags().BoolVar(&buildFlags.dryRun, "dry-run", false,
		"Show what would be published without writing")
	buildCmd.Flags().BoolVar(&buildFlags.json, "json", false,
		"Output the build summary as JSON")
	buildCmd.Flags().BoolVar(&buildFlags.force, "force", false,
		"Ignore the previous build report and publish everything")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	root, err := resolveVault(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if buildFlags.out != "" {
		cfg.Build.OutputDir = buildFlags.out
	}

	paths := resolvePaths(root, cfg)
	opts := builderOptions(paths, cfg)
	opts.DryRun = buildFlags.dryRun
	opts.Force = buildFlags.force

	if !buildFlags.dryRun {
		runs, err := openHistory(paths, cfg)
		if err != nil {
			log.Warn("build history unavailable", "path", paths.history, "error", err)
		} else if runs != nil {
			defer func() { _ = runs.Close() }()
			opts.History = runs
		}
	}

	builder, err := newBuilder(paths, opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sum, err := builder.Run(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if buildFlags.json {
		if err := outputJSON(out, sum); err != nil {
			return err
		}
	} else {
		printBuildSummary(out, root, sum)
	}

	if len(sum.Failures) > 0 {
		return fmt.Errorf("%d of %d files: %w", len(sum.Failures), sum.Counts.Total(), errFailures)
	}
	return nil
}

func printBuildSummary(w io.Writer, root string, sum *pipeline.Summary) {
	c := sum.Counts
	verb := "Built"
	if sum.DryRun {
		verb = "Would build"
	}
	fmt.Fprintf(w, "%s %d files: %d added, %d updated, %d moved, %d removed, %d cached\n",
		verb, c.Total()-c.Removed, c.Added, c.Updated, c.Moved, c.Removed, c.Cached)

	if sum.Publish != nil && len(sum.Publish.Operations) > 0 {
		for _, op := range sum.Publish.Operations {
			fmt.Fprintf(w, "  %-6s %s\n", op.Action, op.Path)
		}
	}
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  failed %s (%s): %s\n", relTo(root, f.Path), f.Stage, f.Error)
	}
	if sum.ColdStart {
		fmt.Fprintln(w, "No previous build report; every file was treated as new.")
	}
	if !sum.DryRun && !sum.Saved {
		fmt.Fprintln(w, "Warning: the build report could not be saved; the next build will redo this work.")
	}
}
