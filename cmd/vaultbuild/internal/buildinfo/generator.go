// Package buildinfo computes the identity and output location of vault files.
//
// # Identity
//
// A file's id is the xxHash64 of its content and size, so it survives a
// rename and changes with every edit. When two files in one run share
// content, only one of them keeps that plain id and the others get an id
// salted with their normalized origin path; ids are therefore unique within a
// run.
//
// Assign decides the owner of each plain id before any file is generated, so
// ids do not depend on walk order:
//
//   - a file whose salted id is in the previous run keeps it;
//   - among the rest, the file at the origin the previous run recorded for
//     the plain id wins, otherwise the smallest normalized origin does.
//
// Without Assign, the first file generated keeps the plain id.
//
// # Build Paths
//
// Markdown keeps the vault's directory layout, with each path segment
// slugged. Media and unknown files are flattened into the assets directory.
// Build paths that collide within a run get a counter suffix:
//
//	notes/My Note.md  -> <out>/notes/my-note.md
//	img/Cat.png       -> <out>/assets/cat.png
//	other/cat.png     -> <out>/assets/cat-1.png
package buildinfo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/afero"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/fileio"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
)

// ErrFolder is returned when Generate is called on a folder node.
var ErrFolder = errors.New("folders have no build info")

// Options configures a Generator.
type Options struct {
	// VaultRoot is the absolute vault directory.
	VaultRoot string

	// OutputDir is the absolute build output directory.
	OutputDir string

	// AssetsDir is the directory, relative to OutputDir, that receives media.
	AssetsDir string
}

// Generator issues ids and build paths for one run at a time.
type Generator struct {
	fs       afero.Fs
	resolver *fileio.PathResolver
	opts     Options

	// normalized build path -> normalized origin
	paths map[string]string
	// normalized origin -> issued build path
	byOrigin map[string]string
	// id -> normalized origin
	ids map[string]string
	// normalized origin -> id fixed by Assign
	assigned map[string]string
}

// PrevOrigin returns the origin the previous run recorded for id.
type PrevOrigin func(id string) (origin string, ok bool)

// New creates a Generator reading content from fs.
func New(fs afero.Fs, resolver *fileio.PathResolver, opts Options) *Generator {
	if opts.AssetsDir == "" {
		opts.AssetsDir = "assets"
	}
	g := &Generator{
		fs:       fs,
		resolver: resolver,
		opts:     opts,
	}
	g.Reset()
	return g
}

// Reset forgets ids and build paths issued so far. Call at the start of a run.
func (g *Generator) Reset() {
	g.paths = make(map[string]string)
	g.byOrigin = make(map[string]string)
	g.ids = make(map[string]string)
	g.assigned = make(map[string]string)
}

// Assign hashes files and fixes their ids for this run. prev may be nil on a
// cold start. Files that cannot be read are left for Generate to report.
func (g *Generator) Assign(ctx context.Context, files []*vault.Node, prev PrevOrigin) error {
	if prev == nil {
		prev = func(string) (string, bool) { return "", false }
	}

	groups := make(map[string][]string)
	for _, n := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n == nil || n.IsFolder() {
			continue
		}
		norm := g.resolver.Normalize(n.AbsolutePath)
		if _, done := g.assigned[norm]; done {
			continue
		}
		contentID, err := g.hash(n.AbsolutePath)
		if err != nil {
			continue
		}

		salted := SaltedID(norm, contentID)
		if origin, ok := prev(salted); ok && g.resolver.Normalize(origin) == norm {
			g.claim(salted, norm)
			continue
		}
		groups[contentID] = append(groups[contentID], norm)
	}

	for contentID, origins := range groups {
		owner := slices.Min(origins)
		if origin, ok := prev(contentID); ok {
			if want := g.resolver.Normalize(origin); slices.Contains(origins, want) {
				owner = want
			}
		}
		for _, norm := range origins {
			if norm == owner {
				g.claim(contentID, norm)
			} else {
				g.claim(SaltedID(norm, contentID), norm)
			}
		}
	}
	return nil
}

func (g *Generator) claim(id, normOrigin string) {
	g.assigned[normOrigin] = id
	g.ids[id] = normOrigin
}

// Generate computes the id and build path of a file node.
func (g *Generator) Generate(node *vault.Node) (vault.BuildInfo, error) {
	if node == nil {
		return vault.BuildInfo{}, errors.New("nil node")
	}
	if node.IsFolder() {
		return vault.BuildInfo{}, fmt.Errorf("%s: %w", node.AbsolutePath, ErrFolder)
	}

	origin := node.AbsolutePath
	normOrigin := g.resolver.Normalize(origin)

	id, err := g.id(origin, normOrigin)
	if err != nil {
		return vault.BuildInfo{}, err
	}

	build, err := g.buildPath(node, normOrigin)
	if err != nil {
		return vault.BuildInfo{}, err
	}

	return vault.BuildInfo{
		ID: id,
		BuildPath: vault.BuildPath{
			Origin: origin,
			Build:  build,
		},
	}, nil
}

func (g *Generator) id(origin, normOrigin string) (string, error) {
	if id, ok := g.assigned[normOrigin]; ok {
		return id, nil
	}

	id, err := g.hash(origin)
	if err != nil {
		return "", err
	}
	if owner, ok := g.ids[id]; ok && owner != normOrigin {
		id = SaltedID(normOrigin, id)
	}
	g.ids[id] = normOrigin
	return id, nil
}

func (g *Generator) hash(origin string) (string, error) {
	f, err := g.fs.Open(origin)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", origin, err)
	}
	defer func() { _ = f.Close() }()

	id, err := HashContent(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", origin, err)
	}
	return id, nil
}

func (g *Generator) buildPath(node *vault.Node, normOrigin string) (string, error) {
	if issued, ok := g.byOrigin[normOrigin]; ok {
		return issued, nil
	}

	var dir, name string
	switch node.Category {
	case vault.CategoryText:
		rel, err := filepath.Rel(g.opts.VaultRoot, filepath.Dir(node.AbsolutePath))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%s is outside the vault %s", node.AbsolutePath, g.opts.VaultRoot)
		}
		dir = filepath.Join(g.opts.OutputDir, slugPath(rel))
		name = Slug(node.Stem()) + ".md"
	default:
		dir = filepath.Join(g.opts.OutputDir, g.opts.AssetsDir)
		name = Slug(node.Stem()) + strings.ToLower(filepath.Ext(node.FileName))
	}

	build := g.dedupe(dir, name, normOrigin)
	g.byOrigin[normOrigin] = build
	return build, nil
}

// dedupe returns dir/name, or dir/name with the first free counter suffix.
func (g *Generator) dedupe(dir, name, normOrigin string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		key := g.resolver.Normalize(candidate)
		if owner, taken := g.paths[key]; !taken || owner == normOrigin {
			g.paths[key] = normOrigin
			return candidate
		}
		candidate = filepath.Join(dir, stem+"-"+strconv.Itoa(i)+ext)
	}
}

// Slug lower-cases s and replaces whitespace runs with a single dash.
// An empty result becomes "untitled".
func Slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			pendingDash = true
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

func slugPath(rel string) string {
	if rel == "." {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for i, p := range parts {
		parts[i] = Slug(p)
	}
	return filepath.Join(parts...)
}
