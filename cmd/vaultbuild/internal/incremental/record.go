package incremental

import (
	"time"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
)

// Record is the persisted build state of one vault file.
type Record struct {
	ID         string           `json:"id"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	FileName   string           `json:"file_name"`
	FileType   vault.Category   `json:"file_type"`
	BuildState vault.BuildState `json:"build_state"`
	BuildPath  vault.BuildPath  `json:"build_path"`
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// IsRemoved reports whether the record was swept as REMOVED.
func (r *Record) IsRemoved() bool {
	return r != nil && r.BuildState == vault.StateRemoved
}

// newRecord creates a fresh ADDED record for node.
func newRecord(node *vault.Node, now time.Time) *Record {
	return &Record{
		ID:         node.BuildInfo.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
		FileName:   node.FileName,
		FileType:   node.Category,
		BuildState: vault.StateAdded,
		BuildPath:  node.BuildInfo.BuildPath,
	}
}

// mergeRecord overlays node's build info onto a previous record.
// CreatedAt is kept; the rest follows the node.
func mergeRecord(prev *Record, node *vault.Node, state vault.BuildState, now time.Time) *Record {
	rec := prev.Clone()
	rec.ID = node.BuildInfo.ID
	rec.UpdatedAt = now
	rec.FileName = node.FileName
	rec.FileType = node.Category
	rec.BuildState = state
	rec.BuildPath = node.BuildInfo.BuildPath
	return rec
}
