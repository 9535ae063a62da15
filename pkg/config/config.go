// Package config provides configuration management for vaultbuild.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/vaultbuild/config.toml)
//  3. Project config (.vaultbuild/config.toml or vaultbuild.toml)
//  4. Environment variables (VAULTBUILD_*)
//  5. CLI flags (highest priority)
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Config is the main configuration struct for vaultbuild.
type Config struct {
	// Vault configures how the vault tree is read.
	Vault VaultConfig `toml:"vault"`

	// Build configures the output tree and the build report.
	Build BuildConfig `toml:"build"`

	// History configures the build-run database.
	History HistoryConfig `toml:"history"`

	// Watch configures watch mode.
	Watch WatchConfig `toml:"watch"`
}

// VaultConfig holds vault-reading configuration.
type VaultConfig struct {
	// Ignore is a list of doublestar globs, relative to the vault root, to skip.
	Ignore []string `toml:"ignore"`

	// IncludeHidden includes dot-files and dot-directories other than the
	// always-ignored ones.
	IncludeHidden *bool `toml:"include_hidden"`
}

// BuildConfig holds output configuration.
type BuildConfig struct {
	// OutputDir is the build output directory. Relative paths resolve against the vault root.
	OutputDir string `toml:"output_dir"`

	// AssetsDir is the directory, under OutputDir, that holds flattened media files.
	AssetsDir string `toml:"assets_dir"`

	// ReportPath is the build report location. Relative paths resolve against the vault root.
	ReportPath string `toml:"report_path"`
}

// HistoryConfig holds build-history configuration.
type HistoryConfig struct {
	// Enabled records every build run in a SQLite database.
	Enabled *bool `toml:"enabled"`

	// Path is the database location. Relative paths resolve against the vault root.
	Path string `toml:"path"`
}

// WatchConfig holds watch-mode configuration.
type WatchConfig struct {
	// Debounce is how long to wait after the last change before rebuilding ("500ms", "2s").
	Debounce string `toml:"debounce"`
}

// StateDirName is the per-vault state directory.
const StateDirName = ".vaultbuild"

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	falseVal := false
	return &Config{
		Vault: VaultConfig{
			Ignore:        []string{},
			IncludeHidden: &falseVal,
		},
		Build: BuildConfig{
			OutputDir:  "dist",
			AssetsDir:  "assets",
			ReportPath: filepath.Join(StateDirName, "build-report.json"),
		},
		History: HistoryConfig{
			Enabled: &trueVal,
			Path:    filepath.Join(StateDirName, "history.db"),
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// IsHistoryEnabled reports whether build runs are recorded.
func (c *Config) IsHistoryEnabled() bool {
	return c.History.Enabled != nil && *c.History.Enabled
}

// IncludesHidden reports whether hidden files are walked.
func (c *Config) IncludesHidden() bool {
	return c.Vault.IncludeHidden != nil && *c.Vault.IncludeHidden
}

// DebounceDuration parses Watch.Debounce.
func (c *Config) DebounceDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 0, fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
	}
	return d, nil
}

// Resolve returns p as an absolute path, resolving relative paths against root.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Validate checks the configuration for values no build could run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Build.OutputDir == "" {
		errs = append(errs, errors.New("build.output_dir must not be empty"))
	}
	if c.Build.AssetsDir == "" || filepath.IsAbs(c.Build.AssetsDir) {
		errs = append(errs, fmt.Errorf("build.assets_dir must be a relative directory, got %q", c.Build.AssetsDir))
	}
	if c.Build.ReportPath == "" {
		errs = append(errs, errors.New("build.report_path must not be empty"))
	}
	if d, err := c.DebounceDuration(); err != nil {
		errs = append(errs, err)
	} else if d < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", d))
	}
	for _, pattern := range c.Vault.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("invalid vault.ignore pattern %q", pattern))
		}
	}
	return errors.Join(errs...)
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if len(other.Vault.Ignore) > 0 {
		for _, p := range other.Vault.Ignore {
			if !slices.Contains(c.Vault.Ignore, p) {
				c.Vault.Ignore = append(c.Vault.Ignore, p)
			}
		}
	}
	if other.Vault.IncludeHidden != nil {
		c.Vault.IncludeHidden = other.Vault.IncludeHidden
	}

	if other.Build.OutputDir != "" {
		c.Build.OutputDir = other.Build.OutputDir
	}
	if other.Build.AssetsDir != "" {
		c.Build.AssetsDir = other.Build.AssetsDir
	}
	if other.Build.ReportPath != "" {
		c.Build.ReportPath = other.Build.ReportPath
	}

	if other.History.Enabled != nil {
		c.History.Enabled = other.History.Enabled
	}
	if other.History.Path != "" {
		c.History.Path = other.History.Path
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
