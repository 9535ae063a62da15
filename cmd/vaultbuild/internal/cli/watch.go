package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/watch"
	"github.com/albertocavalcante/vaultbuild/internal/log"
)

var watchFlags struct {
	debounce time.Duration
	verbose  bool
	json     bool
	noColor  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch [vault]",
	Short: "Rebuild the vault whenever files change",
	Long: `Builds the vault, then watches it and rebuilds after every burst of
changes.

Example output:

  $ vaultbuild watch

  vaultbuild: watching 412 files in /path/to/vault
  vaultbuild: ready

  [14:32:15] ~ Notes/Meeting.md
  [14:32:15] rebuilding after change to Notes/Meeting.md...
  [14:32:15] ✓ 0 added, 1 updated, 0 moved, 0 removed, 411 cached (38ms)

Press Ctrl+C to stop watching.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchFlags.debounce, "debounce", 0,
		"Debounce window, e.g. 500ms (overrides config)")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveVault(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	debounce := watchFlags.debounce
	if debounce <= 0 {
		if debounce, err = cfg.DebounceDuration(); err != nil {
			return err
		}
	}

	paths := resolvePaths(root, cfg)
	opts := builderOptions(paths, cfg)

	runs, err := openHistory(paths, cfg)
	if err != nil {
		log.Warn("build history unavailable", "path", paths.history, "error", err)
	} else if runs != nil {
		defer func() { _ = runs.Close() }()
		opts.History = runs
	}

	builder, err := newBuilder(paths, opts)
	if err != nil {
		return err
	}

	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	w, err := watch.New(watch.Config{
		Root: root,
		Parse: vault.ParseOptions{
			Ignore:        opts.Ignore,
			ExcludePaths:  append([]string{opts.OutputDir, opts.ReportPath}, opts.ExcludePaths...),
			IncludeHidden: opts.IncludeHidden,
		},
		Debounce: debounce,
		Verbose:  watchFlags.verbose,
		NoColor:  watchFlags.noColor,
		JSON:     watchFlags.json,
		Writer:   cmd.OutOrStdout(),
	}, builder)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
