package incremental

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/fileio"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
	"github.com/albertocavalcante/vaultbuild/internal/log"
)

// ErrMissingBuildInfo is returned by UpdateStore for a node with no build info.
var ErrMissingBuildInfo = errors.New("node has no build info")

// CacheManager classifies vault files against the previous build.
//
// # Classification
//
// For a node whose id is in the previous report:
//
//	same origin       -> CACHED
//	different origin  -> MOVED (previous origin is flagged as vacated)
//
// For a node whose id is new:
//
//	previous record at the same origin, origin not vacated -> UPDATED
//	previous record at the same origin, origin vacated     -> ADDED (flag cleared)
//	no previous record at the origin                       -> ADDED
//
// After the walk, SyncRemovedStore marks every previous record whose origin
// was neither seen nor vacated as REMOVED.
//
// A CacheManager serves exactly one run. The vacated-origin set is not
// persisted, so a move whose two sides are observed in different runs shows
// up as REMOVED followed by ADDED.
type CacheManager struct {
	store    *Store
	resolver *fileio.PathResolver
	logger   *slog.Logger
	now      func() time.Time

	// normalized origins vacated by a move this run
	movedFromOrigins map[string]struct{}
}

// ManagerOption configures a CacheManager.
type ManagerOption func(*CacheManager)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *CacheManager) { m.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *CacheManager) { m.logger = l }
}

// NewCacheManager creates a manager over store.
func NewCacheManager(store *Store, resolver *fileio.PathResolver, opts ...ManagerOption) *CacheManager {
	m := &CacheManager{
		store:            store,
		resolver:         resolver,
		now:              func() time.Time { return time.Now().UTC() },
		movedFromOrigins: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrComponent(m.logger, "incremental")
	return m
}

// Store returns the managed store.
func (m *CacheManager) Store() *Store {
	return m.store
}

// Setup loads the previous report. When no usable report exists the store is
// reset and every node of this run classifies as ADDED. Returns whether a
// report was loaded.
func (m *CacheManager) Setup() bool {
	if err := m.store.LoadReport(); err != nil {
		m.logger.Debug("cold start", "reason", err)
		m.store.Reset()
		return false
	}
	return true
}

// Save persists the store. A failure is logged; in-memory state is kept.
func (m *CacheManager) Save() bool {
	if err := m.store.SaveReport(); err != nil {
		m.logger.Warn("failed to save build report", "path", m.store.ReportPath(), "error", err)
		return false
	}
	return true
}

// IsMovedFrom reports whether origin was vacated by a move this run.
func (m *CacheManager) IsMovedFrom(origin string) bool {
	_, ok := m.movedFromOrigins[m.resolver.Normalize(origin)]
	return ok
}

// UpdateStore classifies node and writes its record into the current map.
func (m *CacheManager) UpdateStore(node *vault.Node) (*Record, error) {
	if node == nil || node.BuildInfo == nil {
		path := ""
		if node != nil {
			path = node.AbsolutePath
		}
		return nil, fmt.Errorf("%s: %w", path, ErrMissingBuildInfo)
	}

	info := node.BuildInfo
	now := m.now()
	newOrigin := m.resolver.Normalize(info.BuildPath.Origin)

	if prev, err := m.store.FindByID(info.ID, TargetPrev); err == nil {
		prevOrigin := m.resolver.Normalize(prev.BuildPath.Origin)
		if prevOrigin != newOrigin {
			rec := m.store.Update(info.ID, mergeRecord(prev, node, vault.StateMoved, now))
			m.movedFromOrigins[prevOrigin] = struct{}{}
			m.logger.Debug("moved", "id", info.ID, "from", prev.BuildPath.Origin, "to", info.BuildPath.Origin)
			return rec, nil
		}
		rec := m.store.Update(info.ID, mergeRecord(prev, node, vault.StateCached, now))
		log.V(log.VerbosityTrace).Debug("cached", "id", info.ID, "origin", info.BuildPath.Origin)
		return rec, nil
	}

	prev, err := m.store.FindByOriginPath(info.BuildPath.Origin, TargetPrev)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		rec := m.store.Update(info.ID, newRecord(node, now))
		m.logger.Debug("added", "id", info.ID, "origin", info.BuildPath.Origin)
		return rec, nil
	}

	if _, vacated := m.movedFromOrigins[newOrigin]; vacated {
		delete(m.movedFromOrigins, newOrigin)
		rec := m.store.Update(info.ID, newRecord(node, now))
		m.logger.Debug("added at vacated origin", "id", info.ID, "origin", info.BuildPath.Origin)
		return rec, nil
	}

	if prev.ID != info.ID {
		if _, err := m.store.Remove(prev.ID); err != nil {
			// The stale id is usually not in current yet.
			m.logger.Debug("stale id not in current", "id", prev.ID, "error", err)
		}
	}
	rec := m.store.Update(info.ID, mergeRecord(prev, node, vault.StateUpdated, now))
	m.logger.Debug("updated", "id", info.ID, "previous_id", prev.ID, "origin", info.BuildPath.Origin)
	return rec, nil
}

// SyncRemovedStore marks previous records with no current counterpart as
// REMOVED. Call once after every node has gone through UpdateStore.
// Returns the number of records swept.
func (m *CacheManager) SyncRemovedStore() int {
	seen := make(map[string]struct{}, len(m.store.current))
	for _, r := range m.store.current {
		if r.IsRemoved() {
			continue
		}
		seen[m.resolver.Normalize(r.BuildPath.Origin)] = struct{}{}
	}

	now := m.now()
	swept := 0
	for _, id := range slices.Sorted(maps.Keys(m.store.prevNormalized)) {
		origin := m.store.prevNormalized[id]
		if _, ok := seen[origin]; ok {
			continue
		}
		if _, ok := m.movedFromOrigins[origin]; ok {
			continue
		}
		rec := m.store.prev[id].Clone()
		rec.BuildState = vault.StateRemoved
		rec.UpdatedAt = now
		m.store.Update(id, rec)
		swept++
		m.logger.Debug("removed", "id", id, "origin", rec.BuildPath.Origin)
	}
	return swept
}

// CheckStatus returns the current build state of id.
func (m *CacheManager) CheckStatus(id string) (vault.BuildState, error) {
	rec, ok := m.store.current[id]
	if !ok {
		return "", fmt.Errorf("status of %s: %w", id, ErrNotFound)
	}
	return rec.BuildState, nil
}

// CheckStatusByPath returns the current build state of the file at origin.
func (m *CacheManager) CheckStatusByPath(origin string) (vault.BuildState, error) {
	rec, err := m.store.FindByOriginPath(origin, TargetCurrent)
	if err != nil {
		return "", err
	}
	return rec.BuildState, nil
}
