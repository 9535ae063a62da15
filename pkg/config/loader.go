package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "vaultbuild.toml"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "vaultbuild"

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/vaultbuild/config.toml)
//  3. Project config (.vaultbuild/config.toml or vaultbuild.toml)
//  4. Environment variables (VAULTBUILD_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		cfg := NewConfig()
		if globalCfg := loadGlobalConfig(); globalCfg != nil {
			cfg.Merge(globalCfg)
		}
		applyEnvironmentVariables(cfg)
		return cfg
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	// Layer 2: Global user config
	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
		cfg.Merge(projectCfg)
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// LoadFile layers a single explicit config file over defaults and the environment.
// Used for --config; global and project files are not consulted.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	fileCfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(fileCfg)
	applyEnvironmentVariables(cfg)
	return cfg, nil
}

// loadGlobalConfig loads the global user configuration from ~/.config/vaultbuild/config.toml.
func loadGlobalConfig() *Config {
	path := GetGlobalConfigPath()
	if path == "" {
		return nil
	}
	return loadConfigFile(path)
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) *Config {
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(path); cfg != nil {
				return cfg
			}
		}

		// Stop at filesystem root or vault/repository root
		if isVaultRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isVaultRoot checks if the directory is a vault or repository root (has .obsidian or .git).
func isVaultRoot(dir string) bool {
	markers := []string{".obsidian", ".git"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file, nil if missing or malformed.
func loadConfigFile(path string) *Config {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil
	}
	return cfg
}

func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvironmentVariables applies VAULTBUILD_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	// VAULTBUILD_IGNORE: comma-separated globs, replaces the configured list
	if v := os.Getenv("VAULTBUILD_IGNORE"); v != "" {
		cfg.Vault.Ignore = splitAndTrim(v)
	}
	applyBoolEnv("VAULTBUILD_INCLUDE_HIDDEN", &cfg.Vault.IncludeHidden)

	if v := os.Getenv("VAULTBUILD_OUTPUT_DIR"); v != "" {
		cfg.Build.OutputDir = v
	}
	if v := os.Getenv("VAULTBUILD_ASSETS_DIR"); v != "" {
		cfg.Build.AssetsDir = v
	}
	if v := os.Getenv("VAULTBUILD_REPORT_PATH"); v != "" {
		cfg.Build.ReportPath = v
	}

	applyBoolEnv("VAULTBUILD_HISTORY_ENABLED", &cfg.History.Enabled)
	if v := os.Getenv("VAULTBUILD_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	if v := os.Getenv("VAULTBUILD_WATCH_DEBOUNCE"); v != "" {
		cfg.Watch.Debounce = v
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, StateDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}

// Encode renders cfg as TOML, as written by `vaultbuild init`.
func Encode(cfg *Config) ([]byte, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
