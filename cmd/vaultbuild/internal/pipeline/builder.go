// Package pipeline runs one incremental build of a vault.
//
// A run loads the previous build report, walks the vault depth-first to
// identify every file, reconciles the files against the report, sweeps
// removals, publishes the changes and saves the new report. Files with
// duplicate content keep the ids the report knows them by. A cancelled run
// returns before saving, so the next run starts from the last complete report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/buildinfo"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/fileio"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/history"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/incremental"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/publish"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
	"github.com/albertocavalcante/vaultbuild/internal/log"
)

// Recorder stores finished runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Options configures a Builder. Paths must be absolute.
type Options struct {
	VaultRoot  string
	OutputDir  string
	AssetsDir  string
	ReportPath string

	// Ignore holds doublestar globs relative to the vault root.
	Ignore        []string
	IncludeHidden bool

	// ExcludePaths are extra absolute paths kept out of the walk.
	ExcludePaths []string

	// DryRun reconciles and plans publishing without writing anything.
	DryRun bool

	// Force ignores the previous report, making every file ADDED.
	Force bool

	// History records finished runs when set.
	History Recorder

	Logger *slog.Logger
	Clock  func() time.Time
}

// Builder runs builds. Runs must not overlap; callers serialize them.
type Builder struct {
	fs       afero.Fs
	io       *fileio.IO
	resolver *fileio.PathResolver
	gen      *buildinfo.Generator
	opts     Options
	logger   *slog.Logger
}

// New creates a Builder over fs.
func New(fs afero.Fs, opts Options) (*Builder, error) {
	for name, p := range map[string]string{
		"vault root":  opts.VaultRoot,
		"output dir":  opts.OutputDir,
		"report path": opts.ReportPath,
	} {
		if p == "" || !filepath.IsAbs(p) {
			return nil, fmt.Errorf("%s must be an absolute path, got %q", name, p)
		}
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	resolver := fileio.NewPathResolver(fs)
	return &Builder{
		fs:       fs,
		io:       fileio.New(fs),
		resolver: resolver,
		gen: buildinfo.New(fs, resolver, buildinfo.Options{
			VaultRoot: opts.VaultRoot,
			OutputDir: opts.OutputDir,
			AssetsDir: opts.AssetsDir,
		}),
		opts:   opts,
		logger: log.OrComponent(opts.Logger, "pipeline"),
	}, nil
}

// NewStore returns a store bound to the builder's report.
func (b *Builder) NewStore() *incremental.Store {
	return incremental.NewStore(incremental.StoreOptions{
		ReportPath: b.opts.ReportPath,
		IO:         b.io,
		Resolver:   b.resolver,
		Logger:     b.logger,
	})
}

// RemoveOutput deletes the output directory.
func (b *Builder) RemoveOutput() error {
	return b.io.RemoveAll(b.opts.OutputDir)
}

// Run performs a full build: reconcile, publish and save.
func (b *Builder) Run(ctx context.Context) (*Summary, error) {
	return b.run(ctx, false)
}

// Plan reconciles the vault against the report without publishing or saving.
func (b *Builder) Plan(ctx context.Context) (*Summary, error) {
	return b.run(ctx, true)
}

func (b *Builder) run(ctx context.Context, planOnly bool) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: b.opts.Clock(),
		DryRun:    b.opts.DryRun,
		Planned:   planOnly,
		Changes:   []Change{},
	}
	logger := b.logger.With("run_id", sum.RunID)

	b.gen.Reset()
	store := b.NewStore()
	mgr := incremental.NewCacheManager(store, b.resolver, incremental.WithClock(b.opts.Clock), incremental.WithLogger(logger))

	if b.opts.Force {
		store.Reset()
		sum.ColdStart = true
	} else {
		sum.ColdStart = !mgr.Setup()
	}
	if sum.ColdStart {
		logger.Info("no previous build report, building everything", "report", b.opts.ReportPath)
	}

	root, err := vault.Parse(ctx, b.fs, b.opts.VaultRoot, vault.ParseOptions{
		Ignore:        b.opts.Ignore,
		ExcludePaths:  append([]string{b.opts.OutputDir, b.opts.ReportPath}, b.opts.ExcludePaths...),
		IncludeHidden: b.opts.IncludeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault: %w", err)
	}
	sum.Stats = vault.CountCategories(root)

	walked := root.Files()
	if err := b.gen.Assign(ctx, walked, prevOrigin(store)); err != nil {
		logger.Warn("build cancelled, report not saved", "error", err)
		return nil, err
	}

	files := make([]*vault.Node, 0, len(walked))
	for _, n := range walked {
		if err := ctx.Err(); err != nil {
			logger.Warn("build cancelled, report not saved", "error", err)
			return nil, err
		}
		if b.identify(n, sum, logger) {
			files = append(files, n)
		}
	}

	// Files whose id is already known go first, so a move vacates its old
	// origin before a new file at that origin is classified.
	for _, n := range knownFirst(files, store) {
		if err := ctx.Err(); err != nil {
			logger.Warn("build cancelled, report not saved", "error", err)
			return nil, err
		}
		b.reconcile(mgr, n, sum, logger)
	}

	swept := mgr.SyncRemovedStore()
	logger.Debug("removal sweep", "removed", swept)

	sum.Counts = countsFrom(store.Counts())
	sum.Changes = changesFrom(store.List(incremental.TargetCurrent))

	if !planOnly {
		pub := publish.New(b.io, b.resolver, publish.Options{
			OutputDir: b.opts.OutputDir,
			DryRun:    b.opts.DryRun,
			Logger:    logger,
		})
		res, err := pub.Publish(ctx, store)
		if err != nil {
			logger.Warn("build cancelled, report not saved", "error", err)
			return nil, err
		}
		sum.Publish = res
		for _, f := range res.Failures {
			sum.Failures = append(sum.Failures, Failure{Path: f.Operation.Path, Stage: "publish", Error: f.Message})
		}

		if !b.opts.DryRun {
			sum.Saved = mgr.Save()
		}
	}

	sum.FinishedAt = b.opts.Clock()
	sum.Duration = sum.FinishedAt.Sub(sum.StartedAt)

	if !planOnly && !b.opts.DryRun && b.opts.History != nil {
		if err := b.opts.History.Record(ctx, sum.HistoryRun()); err != nil {
			logger.Warn("failed to record build history", "error", err)
		}
	}

	logger.Info("build finished",
		"added", sum.Counts.Added,
		"updated", sum.Counts.Updated,
		"cached", sum.Counts.Cached,
		"moved", sum.Counts.Moved,
		"removed", sum.Counts.Removed,
		"failed", len(sum.Failures),
		"saved", sum.Saved,
		"duration", sum.Duration)
	return sum, nil
}

// identify injects the id and build path into a file node.
// Failures are recorded and the walk continues.
func (b *Builder) identify(n *vault.Node, sum *Summary, logger *slog.Logger) bool {
	info, err := b.gen.Generate(n)
	if err != nil {
		logger.Error("failed to compute build info", "path", n.AbsolutePath, "error", err)
		sum.Failures = append(sum.Failures, Failure{Path: n.AbsolutePath, Stage: "identify", Error: err.Error()})
		return false
	}
	n.InjectBuildInfo(info)
	return true
}

// prevOrigin looks ids up in the previous report.
func prevOrigin(store *incremental.Store) buildinfo.PrevOrigin {
	return func(id string) (string, bool) {
		rec, err := store.FindByID(id, incremental.TargetPrev)
		if err != nil {
			return "", false
		}
		return rec.BuildPath.Origin, true
	}
}

// knownFirst returns files with an id present in the previous report,
// followed by the rest. Walk order is kept within each group.
func knownFirst(files []*vault.Node, store *incremental.Store) []*vault.Node {
	ordered := make([]*vault.Node, 0, len(files))
	var unknown []*vault.Node
	for _, n := range files {
		if _, err := store.FindByID(n.BuildInfo.ID, incremental.TargetPrev); err == nil {
			ordered = append(ordered, n)
		} else {
			unknown = append(unknown, n)
		}
	}
	return append(ordered, unknown...)
}

// reconcile classifies one identified file node.
// Failures are recorded and the run continues.
func (b *Builder) reconcile(mgr *incremental.CacheManager, n *vault.Node, sum *Summary, logger *slog.Logger) {
	rec, err := mgr.UpdateStore(n)
	if err != nil {
		stage := "reconcile"
		if errors.Is(err, incremental.ErrMissingBuildInfo) {
			stage = "identify"
		}
		logger.Error("failed to reconcile", "path", n.AbsolutePath, "error", err)
		sum.Failures = append(sum.Failures, Failure{Path: n.AbsolutePath, Stage: stage, Error: err.Error()})
		return
	}
	n.BuildInfo.BuildState = rec.BuildState
}
