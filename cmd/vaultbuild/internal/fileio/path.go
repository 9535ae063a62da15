package fileio

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

// PathResolver canonicalizes paths so that lookups and move detection compare
// like with like. All path comparisons in a build go through Normalize.
type PathResolver struct {
	fs       afero.Fs
	caseFold bool
	symlinks bool
}

// NewPathResolver creates a resolver for fs. Symlinks are only resolved when fs
// is the OS filesystem; case folding follows the host platform.
func NewPathResolver(fs afero.Fs) *PathResolver {
	_, isOS := fs.(*afero.OsFs)
	return &PathResolver{
		fs:       fs,
		caseFold: caseInsensitivePlatform(runtime.GOOS),
		symlinks: isOS,
	}
}

// WithCaseFold overrides platform case folding.
func (r *PathResolver) WithCaseFold(fold bool) *PathResolver {
	cp := *r
	cp.caseFold = fold
	return &cp
}

func caseInsensitivePlatform(goos string) bool {
	return goos == "darwin" || goos == "windows"
}

// Normalize returns the canonical form of path: cleaned, with the longest
// existing ancestor's symlinks resolved, without trailing separators, and
// lower-cased on case-insensitive platforms. The empty path stays empty.
func (r *PathResolver) Normalize(path string) string {
	if path == "" {
		return ""
	}

	p := filepath.Clean(path)
	if r.symlinks {
		p = resolveExisting(p)
	}
	p = trimTrailingSeparators(p)
	if r.caseFold {
		p = strings.ToLower(p)
	}
	return p
}

// Equal reports whether a and b normalize to the same path.
func (r *PathResolver) Equal(a, b string) bool {
	return r.Normalize(a) == r.Normalize(b)
}

// resolveExisting resolves symlinks in the longest prefix of p that exists.
func resolveExisting(p string) string {
	existing := p
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return p
		}
		rest = append(rest, filepath.Base(existing))
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return p
	}
	for i := len(rest) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, rest[i])
	}
	return resolved
}

func trimTrailingSeparators(p string) string {
	vol := filepath.VolumeName(p)
	for len(p) > len(vol)+1 && os.IsPathSeparator(p[len(p)-1]) {
		p = p[:len(p)-1]
	}
	return p
}
