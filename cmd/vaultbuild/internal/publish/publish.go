// Package publish applies reconciled build states to the output tree.
//
//	ADDED, UPDATED  copy origin to build path
//	MOVED           copy origin to build path, delete the old build path
//	CACHED          copy when the build path changed or the build file is
//	                missing; delete a changed old build path
//	REMOVED         delete the build file
//
// A build path is only deleted when no live record claims it. Failures are
// collected per record and never stop the remaining records.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/fileio"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/incremental"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
	"github.com/albertocavalcante/vaultbuild/internal/log"
)

// Action is what the publisher does to one path.
type Action string

const (
	ActionCopy   Action = "copy"
	ActionHeal   Action = "heal"
	ActionDelete Action = "delete"
)

// Operation is one filesystem change, applied or planned.
type Operation struct {
	Action Action           `json:"action"`
	ID     string           `json:"id"`
	State  vault.BuildState `json:"state"`
	From   string           `json:"from,omitempty"`
	Path   string           `json:"path"`
}

// Failure is an operation that could not be applied.
type Failure struct {
	Operation Operation `json:"operation"`
	Err       error     `json:"-"`
	Message   string    `json:"error"`
}

// Result summarizes a publish pass.
type Result struct {
	Operations []Operation `json:"operations"`
	Failures   []Failure   `json:"failures,omitempty"`
	DryRun     bool        `json:"dry_run"`
}

// Count returns the number of operations with the given action.
func (r *Result) Count(a Action) int {
	n := 0
	for _, op := range r.Operations {
		if op.Action == a {
			n++
		}
	}
	return n
}

// Options configures a Publisher.
type Options struct {
	// OutputDir bounds empty-directory pruning after deletes.
	OutputDir string

	// DryRun plans operations without touching disk.
	DryRun bool

	Logger *slog.Logger
}

// Publisher writes build artifacts.
type Publisher struct {
	io       *fileio.IO
	resolver *fileio.PathResolver
	opts     Options
	logger   *slog.Logger
}

// New creates a Publisher.
func New(io *fileio.IO, resolver *fileio.PathResolver, opts Options) *Publisher {
	return &Publisher{
		io:       io,
		resolver: resolver,
		opts:     opts,
		logger:   log.OrComponent(opts.Logger, "publish"),
	}
}

// Publish applies the current records of store.
func (p *Publisher) Publish(ctx context.Context, store *incremental.Store) (*Result, error) {
	records := store.List(incremental.TargetCurrent)

	claimed := make(map[string]struct{}, len(records))
	for _, r := range records {
		if !r.IsRemoved() {
			claimed[p.resolver.Normalize(r.BuildPath.Build)] = struct{}{}
		}
	}

	res := &Result{DryRun: p.opts.DryRun}

	// Deletes first so a vacated path never shadows a fresh copy.
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, stale := range p.stalePaths(store, r) {
			if _, ok := claimed[p.resolver.Normalize(stale)]; ok {
				continue
			}
			p.apply(res, Operation{Action: ActionDelete, ID: r.ID, State: r.BuildState, Path: stale})
		}
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch r.BuildState {
		case vault.StateAdded, vault.StateUpdated, vault.StateMoved:
			p.apply(res, Operation{Action: ActionCopy, ID: r.ID, State: r.BuildState, From: r.BuildPath.Origin, Path: r.BuildPath.Build})
		case vault.StateCached:
			if p.buildPathChanged(store, r) {
				p.apply(res, Operation{Action: ActionCopy, ID: r.ID, State: r.BuildState, From: r.BuildPath.Origin, Path: r.BuildPath.Build})
				continue
			}
			exists, err := p.io.Exists(r.BuildPath.Build)
			if err != nil || !exists {
				p.apply(res, Operation{Action: ActionHeal, ID: r.ID, State: r.BuildState, From: r.BuildPath.Origin, Path: r.BuildPath.Build})
			}
		}
	}

	p.logger.Info("published",
		"copied", res.Count(ActionCopy),
		"healed", res.Count(ActionHeal),
		"deleted", res.Count(ActionDelete),
		"failed", len(res.Failures),
		"dry_run", p.opts.DryRun)
	return res, nil
}

// stalePaths returns build paths r no longer occupies.
func (p *Publisher) stalePaths(store *incremental.Store, r *incremental.Record) []string {
	switch r.BuildState {
	case vault.StateRemoved:
		return []string{r.BuildPath.Build}
	case vault.StateMoved, vault.StateCached:
		prev, err := store.FindByID(r.ID, incremental.TargetPrev)
		if err == nil && !p.resolver.Equal(prev.BuildPath.Build, r.BuildPath.Build) {
			return []string{prev.BuildPath.Build}
		}
	case vault.StateUpdated:
		prev, err := store.FindByOriginPath(r.BuildPath.Origin, incremental.TargetPrev)
		if err == nil && !p.resolver.Equal(prev.BuildPath.Build, r.BuildPath.Build) {
			return []string{prev.BuildPath.Build}
		}
	}
	return nil
}

// buildPathChanged reports whether a counter suffix moved r since the previous run.
func (p *Publisher) buildPathChanged(store *incremental.Store, r *incremental.Record) bool {
	prev, err := store.FindByID(r.ID, incremental.TargetPrev)
	return err == nil && !p.resolver.Equal(prev.BuildPath.Build, r.BuildPath.Build)
}

func (p *Publisher) insideOutput(path string) bool {
	if p.opts.OutputDir == "" {
		return false
	}
	rel, err := filepath.Rel(p.opts.OutputDir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func (p *Publisher) apply(res *Result, op Operation) {
	res.Operations = append(res.Operations, op)
	if p.opts.DryRun {
		p.logger.Info("would "+string(op.Action), "path", op.Path, "state", op.State)
		return
	}

	var err error
	switch op.Action {
	case ActionCopy, ActionHeal:
		err = p.io.Copy(op.From, op.Path)
	case ActionDelete:
		err = p.io.Remove(op.Path)
		if err == nil && p.insideOutput(op.Path) {
			if perr := p.io.PruneEmptyDirs(filepath.Dir(op.Path), p.opts.OutputDir); perr != nil {
				p.logger.Debug("failed to prune directories", "path", op.Path, "error", perr)
			}
		}
	default:
		err = fmt.Errorf("unknown action %q", op.Action)
	}

	if err != nil {
		p.logger.Error("publish failed", "action", op.Action, "path", op.Path, "error", err)
		res.Failures = append(res.Failures, Failure{Operation: op, Err: err, Message: err.Error()})
		return
	}
	p.logger.Debug(string(op.Action), "path", op.Path, "state", op.State)
}
