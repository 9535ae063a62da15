package incremental

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/fileio"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
	"github.com/albertocavalcante/vaultbuild/internal/log"
)

var (
	// ErrDuplicateID is returned by Add when the id is already in the current map.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned by lookups and Remove on a miss.
	ErrNotFound = errors.New("not found")
)

// reportIndent matches the report layout other tools read.
const reportIndent = "    "

// Target selects which map a lookup scans.
type Target int

const (
	// TargetCurrent is the map being built by this run.
	TargetCurrent Target = iota
	// TargetPrev is the snapshot loaded from the previous report.
	TargetPrev
)

func (t Target) String() string {
	if t == TargetPrev {
		return "prev"
	}
	return "current"
}

// ReportIO is the file access the store needs for its report.
type ReportIO interface {
	fileio.ReadWriter
	Remove(path string) error
	Exists(path string) (bool, error)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// ReportPath is the absolute location of the build report.
	ReportPath string

	// IO reads and writes the report.
	IO ReportIO

	// Resolver normalizes paths for lookups.
	Resolver *fileio.PathResolver

	// Logger defaults to the "incremental" component logger.
	Logger *slog.Logger
}

// Store holds the previous run's records and the records built by this run.
//
// The prev map is only replaced wholesale by LoadReport and Reset; every
// mutating operation touches current only. Store is not safe for concurrent
// use: one run owns it.
type Store struct {
	io         ReportIO
	resolver   *fileio.PathResolver
	reportPath string
	logger     *slog.Logger

	prev    map[string]*Record
	current map[string]*Record

	// normalized origin -> id, for prev
	prevOrigins map[string]string
	// id -> normalized origin, for prev
	prevNormalized map[string]string
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions) *Store {
	s := &Store{
		io:         opts.IO,
		resolver:   opts.Resolver,
		reportPath: opts.ReportPath,
		logger:     log.OrComponent(opts.Logger, "incremental"),
	}
	s.Reset()
	return s
}

// ReportPath returns where the report is read from and written to.
func (s *Store) ReportPath() string {
	return s.reportPath
}

// Add inserts rec under id into current. Fails with ErrDuplicateID if present.
func (s *Store) Add(id string, rec *Record) (*Record, error) {
	if _, ok := s.current[id]; ok {
		return nil, fmt.Errorf("add %s: %w", id, ErrDuplicateID)
	}
	s.current[id] = rec
	return rec, nil
}

// Remove deletes id from current. Fails with ErrNotFound if absent.
func (s *Store) Remove(id string) (bool, error) {
	if _, ok := s.current[id]; !ok {
		return false, fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	delete(s.current, id)
	return true, nil
}

// Update upserts rec under id into current.
func (s *Store) Update(id string, rec *Record) *Record {
	s.current[id] = rec
	return rec
}

func (s *Store) records(target Target) map[string]*Record {
	if target == TargetPrev {
		return s.prev
	}
	return s.current
}

// FindByID returns a copy of the record with id.
func (s *Store) FindByID(id string, target Target) (*Record, error) {
	rec, ok := s.records(target)[id]
	if !ok {
		return nil, fmt.Errorf("id %s in %s: %w", id, target, ErrNotFound)
	}
	return rec.Clone(), nil
}

// FindByBuildPath returns a copy of the record whose build path normalizes to path.
// Live records win over REMOVED ones.
func (s *Store) FindByBuildPath(path string, target Target) (*Record, error) {
	want := s.resolver.Normalize(path)
	rec := s.scan(target, func(r *Record) bool {
		return s.resolver.Normalize(r.BuildPath.Build) == want
	})
	if rec == nil {
		return nil, fmt.Errorf("build path %s in %s: %w", path, target, ErrNotFound)
	}
	return rec.Clone(), nil
}

// FindByOriginPath returns a copy of the record whose origin normalizes to path.
// Live records win over REMOVED ones.
func (s *Store) FindByOriginPath(path string, target Target) (*Record, error) {
	want := s.resolver.Normalize(path)

	if target == TargetPrev {
		id, ok := s.prevOrigins[want]
		if !ok {
			return nil, fmt.Errorf("origin %s in %s: %w", path, target, ErrNotFound)
		}
		return s.prev[id].Clone(), nil
	}

	rec := s.scan(target, func(r *Record) bool {
		return s.resolver.Normalize(r.BuildPath.Origin) == want
	})
	if rec == nil {
		return nil, fmt.Errorf("origin %s in %s: %w", path, target, ErrNotFound)
	}
	return rec.Clone(), nil
}

// scan returns the matching record, preferring live records and then the
// smallest id so results do not depend on map order.
func (s *Store) scan(target Target, match func(*Record) bool) *Record {
	var best *Record
	for _, r := range s.records(target) {
		if !match(r) {
			continue
		}
		switch {
		case best == nil:
			best = r
		case best.IsRemoved() && !r.IsRemoved():
			best = r
		case best.IsRemoved() == r.IsRemoved() && r.ID < best.ID:
			best = r
		}
	}
	return best
}

// List returns copies of the target map's records, sorted by origin then id.
func (s *Store) List(target Target) []*Record {
	return sortedCopies(s.records(target), nil)
}

// RemoveTargets returns current records swept as REMOVED.
func (s *Store) RemoveTargets() []*Record {
	return sortedCopies(s.current, func(r *Record) bool { return r.BuildState == vault.StateRemoved })
}

// MoveTargets returns current records classified as MOVED.
func (s *Store) MoveTargets() []*Record {
	return sortedCopies(s.current, func(r *Record) bool { return r.BuildState == vault.StateMoved })
}

func sortedCopies(m map[string]*Record, keep func(*Record) bool) []*Record {
	out := make([]*Record, 0, len(m))
	for _, r := range m {
		if keep == nil || keep(r) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Record) int {
		if c := cmp.Compare(a.BuildPath.Origin, b.BuildPath.Origin); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of records in the target map.
func (s *Store) Len(target Target) int {
	return len(s.records(target))
}

// Counts returns the number of current records per build state.
func (s *Store) Counts() map[vault.BuildState]int {
	counts := make(map[vault.BuildState]int, len(vault.States))
	for _, r := range s.current {
		counts[r.BuildState]++
	}
	return counts
}

// JSON renders current without REMOVED records, keyed by id.
func (s *Store) JSON() ([]byte, error) {
	live := make(map[string]*Record, len(s.current))
	for id, r := range s.current {
		if r.IsRemoved() {
			continue
		}
		live[id] = r
	}
	data, err := json.MarshalIndent(live, "", reportIndent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// LoadReport replaces prev with the report on disk.
// On any failure the store is left untouched.
func (s *Store) LoadReport() error {
	data, err := s.io.ReadFile(s.reportPath)
	if err != nil {
		return fmt.Errorf("failed to read build report: %w", err)
	}

	var raw map[string]*Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse build report: %w", err)
	}

	prev := make(map[string]*Record, len(raw))
	for id, rec := range raw {
		if rec == nil {
			return fmt.Errorf("build report entry %s is null", id)
		}
		if rec.ID == "" {
			rec.ID = id
		}
		if rec.ID != id {
			return fmt.Errorf("build report entry %s carries id %s", id, rec.ID)
		}
		if rec.IsRemoved() {
			continue
		}
		prev[id] = rec
	}

	s.setPrev(prev)
	s.logger.Debug("loaded build report", "path", s.reportPath, "records", len(prev))
	return nil
}

// SaveReport writes JSON to the report path.
func (s *Store) SaveReport() error {
	data, err := s.JSON()
	if err != nil {
		return err
	}
	if err := s.io.Write(s.reportPath, data); err != nil {
		return fmt.Errorf("failed to write build report: %w", err)
	}
	s.logger.Debug("saved build report", "path", s.reportPath, "bytes", len(data))
	return nil
}

// ReportExists reports whether a report is present on disk.
func (s *Store) ReportExists() bool {
	ok, err := s.io.Exists(s.reportPath)
	return err == nil && ok
}

// ClearReport deletes the report from disk. A missing report is not an error.
func (s *Store) ClearReport() error {
	return s.io.Remove(s.reportPath)
}

// setPrev replaces prev and rebuilds its origin index. When two records
// normalize to the same origin, the smallest id owns it.
func (s *Store) setPrev(prev map[string]*Record) {
	origins := make(map[string]string, len(prev))
	normalized := make(map[string]string, len(prev))
	for _, id := range slices.Sorted(maps.Keys(prev)) {
		norm := s.resolver.Normalize(prev[id].BuildPath.Origin)
		if _, taken := origins[norm]; !taken {
			origins[norm] = id
		}
		normalized[id] = norm
	}
	s.prev = prev
	s.prevOrigins = origins
	s.prevNormalized = normalized
}

// Reset clears both maps.
func (s *Store) Reset() {
	s.prev = make(map[string]*Record)
	s.current = make(map[string]*Record)
	s.prevOrigins = make(map[string]string)
	s.prevNormalized = make(map[string]string)
}
