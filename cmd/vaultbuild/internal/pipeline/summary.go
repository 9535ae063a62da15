package pipeline

import (
	"time"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/history"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/incremental"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/publish"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
)

// Counts is the number of records per build state.
type Counts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Cached  int `json:"cached"`
	Moved   int `json:"moved"`
	Removed int `json:"removed"`
}

func countsFrom(m map[vault.BuildState]int) Counts {
	return Counts{
		Added:   m[vault.StateAdded],
		Updated: m[vault.StateUpdated],
		Cached:  m[vault.StateCached],
		Moved:   m[vault.StateMoved],
		Removed: m[vault.StateRemoved],
	}
}

// Changed returns the number of records that are not CACHED.
func (c Counts) Changed() int {
	return c.Added + c.Updated + c.Moved + c.Removed
}

// Total returns the number of records.
func (c Counts) Total() int {
	return c.Changed() + c.Cached
}

// Failure is a file that could not be reconciled or published.
type Failure struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Change is a record whose state is not CACHED.
type Change struct {
	ID     string           `json:"id"`
	State  vault.BuildState `json:"state"`
	Origin string           `json:"origin"`
	Build  string           `json:"build"`
}

// Summary describes one build or plan.
type Summary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
	ColdStart  bool          `json:"cold_start"`
	DryRun     bool          `json:"dry_run"`
	Planned    bool          `json:"planned"`
	Saved      bool          `json:"saved"`

	Counts   Counts      `json:"counts"`
	Changes  []Change    `json:"changes"`
	Failures []Failure   `json:"failures,omitempty"`
	Stats    vault.Stats `json:"stats"`

	Publish *publish.Result `json:"publish,omitempty"`
}

// HistoryRun converts the summary for the run log.
func (s *Summary) HistoryRun() history.Run {
	return history.Run{
		RunID:     s.RunID,
		StartedAt: s.StartedAt,
		Duration:  s.Duration,
		Added:     s.Counts.Added,
		Updated:   s.Counts.Updated,
		Cached:    s.Counts.Cached,
		Moved:     s.Counts.Moved,
		Removed:   s.Counts.Removed,
		Failed:    len(s.Failures),
		Saved:     s.Saved,
		ColdStart: s.ColdStart,
	}
}

func changesFrom(records []*incremental.Record) []Change {
	changes := make([]Change, 0)
	for _, r := range records {
		if r.BuildState == vault.StateCached {
			continue
		}
		changes = append(changes, Change{
			ID:     r.ID,
			State:  r.BuildState,
			Origin: r.BuildPath.Origin,
			Build:  r.BuildPath.Build,
		})
	}
	return changes
}
