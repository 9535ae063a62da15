package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/history"
	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/pipeline"
	"github.com/albertocavalcante/vaultbuild/pkg/config"
)

// resolveVault returns the absolute vault directory from the optional argument.
func resolveVault(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid vault path %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("vault path must be a directory: %s", path)
	}
	return abs, nil
}

// loadConfig loads the layered config for root, or the --config file.
func loadConfig(root string) (*config.Config, error) {
	var cfg *config.Config
	if globalFlags.configPath != "" {
		var err error
		cfg, err = config.LoadFile(globalFlags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.LoadFrom(root)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// vaultPaths holds the absolute locations derived from the config.
type vaultPaths struct {
	root    string
	output  string
	report  string
	history string
}

func resolvePaths(root string, cfg *config.Config) vaultPaths {
	return vaultPaths{
		root:    root,
		output:  config.Resolve(root, cfg.Build.OutputDir),
		report:  config.Resolve(root, cfg.Build.ReportPath),
		history: config.Resolve(root, cfg.History.Path),
	}
}

// validate rejects an output directory that would swallow the vault.
func (p vaultPaths) validate() error {
	if p.output == p.root || strings.HasPrefix(p.root, p.output+string(filepath.Separator)) {
		return fmt.Errorf("output directory %s must not contain the vault %s", p.output, p.root)
	}
	return nil
}

func builderOptions(p vaultPaths, cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		VaultRoot:     p.root,
		OutputDir:     p.output,
		AssetsDir:     cfg.Build.AssetsDir,
		ReportPath:    p.report,
		Ignore:        cfg.Vault.Ignore,
		IncludeHidden: cfg.IncludesHidden(),
		ExcludePaths:  []string{p.history},
	}
}

// newBuilder creates a builder over the OS filesystem.
func newBuilder(p vaultPaths, opts pipeline.Options) (*pipeline.Builder, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return pipeline.New(afero.NewOsFs(), opts)
}

// openHistory opens the run log, or returns nil when history is disabled.
func openHistory(p vaultPaths, cfg *config.Config) (*history.Store, error) {
	if !cfg.IsHistoryEnabled() {
		return nil, nil
	}
	return history.Open(p.history)
}

var errFailures = errors.New("some files failed")

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// relTo shortens path for display when it is inside root.
func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
