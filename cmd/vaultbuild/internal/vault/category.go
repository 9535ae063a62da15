// Package vault models an Obsidian vault as a tree of nodes.
//
// # Categories
//
// Every file is assigned exactly one Category by its extension, using the
// Extensions table below. The mapping is case-insensitive and DETERMINISTIC:
// the same file name always yields the same category. Files with no known
// extension are UNKNOWN_FILE and are still tracked and published.
//
// # Ignored Directories
//
// Obsidian's own state, the trash, version control and the vaultbuild state
// directory are never walked. See IgnoredDirs.
package vault

import (
	"path/filepath"
	"strings"
)

// Category classifies a node.
type Category string

const (
	CategoryFolder  Category = "FOLDER"
	CategoryText    Category = "TEXT_FILE"
	CategoryImage   Category = "IMAGE_FILE"
	CategoryAudio   Category = "AUDIO_FILE"
	CategoryUnknown Category = "UNKNOWN_FILE"
)

// Extensions maps file categories to their extensions (lower case, with dot).
var Extensions = map[Category][]string{
	CategoryText:  {".md", ".markdown"},
	CategoryImage: {".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp", ".avif", ".ico"},
	CategoryAudio: {".mp3", ".wav", ".ogg", ".m4a", ".flac", ".aac", ".webm"},
}

// IgnoredDirs contains directory names that are never walked or watched.
// Matching is on the exact base name.
var IgnoredDirs = []string{
	".obsidian",    // Obsidian workspace state
	".trash",       // Obsidian trash
	".git",         // Version control
	".vaultbuild",  // vaultbuild state directory
	"node_modules", // Plugin dependencies
}

var extensionCategory = func() map[string]Category {
	m := make(map[string]Category)
	for cat, exts := range Extensions {
		for _, ext := range exts {
			m[ext] = cat
		}
	}
	return m
}()

// CategoryOf returns the category of a file by name.
func CategoryOf(name string) Category {
	if cat, ok := extensionCategory[strings.ToLower(filepath.Ext(name))]; ok {
		return cat
	}
	return CategoryUnknown
}

// IsTracked reports whether nodes of this category get build records.
func (c Category) IsTracked() bool {
	return c != CategoryFolder && c != ""
}

// IgnoreDirSet returns the set of ignored directory names,
// combining defaults with any additional names.
func IgnoreDirSet(additional []string) map[string]bool {
	dirs := make(map[string]bool, len(IgnoredDirs)+len(additional))
	for _, dir := range IgnoredDirs {
		dirs[dir] = true
	}
	for _, dir := range additional {
		dirs[dir] = true
	}
	return dirs
}
