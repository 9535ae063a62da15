package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// ParseOptions configures Parse.
type ParseOptions struct {
	// Ignore holds doublestar globs matched against slash-separated paths
	// relative to the vault root. A matching directory is skipped entirely.
	Ignore []string

	// IgnoreDirs adds directory base names to IgnoredDirs.
	IgnoreDirs []string

	// ExcludePaths are absolute paths skipped with their subtrees
	// (the output directory when it lives inside the vault).
	ExcludePaths []string

	// IncludeHidden walks dot-files and dot-directories not in IgnoredDirs.
	IncludeHidden bool
}

// Parser builds a vault tree from a filesystem.
type Parser struct {
	fs           afero.Fs
	ignore       []string
	ignoreDirs   map[string]bool
	excludePaths []string
	hidden       bool
}

// NewParser creates a parser over fs.
func NewParser(fs afero.Fs, opts ParseOptions) (*Parser, error) {
	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	excludes := make([]string, 0, len(opts.ExcludePaths))
	for _, p := range opts.ExcludePaths {
		if p != "" {
			excludes = append(excludes, filepath.Clean(p))
		}
	}

	return &Parser{
		fs:           fs,
		ignore:       opts.Ignore,
		ignoreDirs:   IgnoreDirSet(opts.IgnoreDirs),
		excludePaths: excludes,
		hidden:       opts.IncludeHidden,
	}, nil
}

// Parse walks root and returns the tree. Children are sorted by name.
func Parse(ctx context.Context, fs afero.Fs, root string, opts ParseOptions) (*Node, error) {
	p, err := NewParser(fs, opts)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, root)
}

// Parse walks root and returns the tree.
func (p *Parser) Parse(ctx context.Context, root string) (*Node, error) {
	root = filepath.Clean(root)

	info, err := p.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", root)
	}

	rootNode := &Node{
		AbsolutePath: root,
		FileName:     filepath.Base(root),
		Category:     CategoryFolder,
	}
	dirs := map[string]*Node{root: rootNode}

	// afero.Walk visits entries in lexical order, so children come out sorted.
	err = afero.Walk(p.fs, root, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		if p.Skip(root, path, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		parent, ok := dirs[filepath.Dir(path)]
		if !ok {
			return fmt.Errorf("parent of %s not visited", path)
		}

		node := &Node{
			AbsolutePath: path,
			FileName:     info.Name(),
			Depth:        parent.Depth + 1,
			Parent:       parent,
		}
		if info.IsDir() {
			node.Category = CategoryFolder
			dirs[path] = node
		} else {
			node.Category = CategoryOf(info.Name())
		}
		parent.Children = append(parent.Children, node)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rootNode, nil
}

// Skip reports whether path, under root, is excluded from the tree.
func (p *Parser) Skip(root, path string, isDir bool) bool {
	name := filepath.Base(path)

	if isDir && p.ignoreDirs[name] {
		return true
	}
	if !p.hidden && strings.HasPrefix(name, ".") {
		return true
	}

	clean := filepath.Clean(path)
	for _, ex := range p.excludePaths {
		if clean == ex || strings.HasPrefix(clean, ex+string(filepath.Separator)) {
			return true
		}
	}

	if len(p.ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, clean)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range p.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
