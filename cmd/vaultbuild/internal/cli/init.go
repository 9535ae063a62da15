package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/vault"
	"github.com/albertocavalcante/vaultbuild/pkg/config"
)

var initFlags struct {
	force  bool
	dryRun bool
}

var initCmd = &cobra.Command{
	Use:   "init [vault]",
	Short: "Write a default vaultbuild config into a vault",
	Long: `Writes .vaultbuild/config.toml with the default settings.

An existing config is left alone unless --force is given.
Use --dry-run to print the config without writing it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.force, "force", false,
		"Overwrite an existing config")
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Show the config without writing it")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := resolveVault(args)
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	content, err := config.Encode(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(root, config.StateDirName, "config.toml")

	out := cmd.OutOrStdout()
	printVaultStats(out, root, cfg)
	if initFlags.dryRun {
		fmt.Fprintf(out, "Would write %s:\n\n%s", path, content)
		return nil
	}
	return writeInitConfig(out, path, content, initFlags.force)
}

func writeInitConfig(out io.Writer, path string, content []byte, force bool) error {
	if fileExists(path) && !force {
		fmt.Fprintf(out, "%s already exists (use --force to overwrite)\n", path)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(out, "Created %s\n", path)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Review the output directory and ignore patterns")
	fmt.Fprintln(out, "  2. Run 'vaultbuild build' to publish the vault")
	return nil
}

// printVaultStats reports what a build with cfg would pick up.
// A vault that cannot be walked is reported and init continues.
func printVaultStats(out io.Writer, root string, cfg *config.Config) {
	tree, err := vault.Parse(context.Background(), afero.NewOsFs(), root, vault.ParseOptions{
		Ignore:        cfg.Vault.Ignore,
		ExcludePaths:  []string{config.Resolve(root, cfg.Build.OutputDir)},
		IncludeHidden: cfg.IncludesHidden(),
	})
	if err != nil {
		fmt.Fprintf(out, "Could not scan %s: %v\n", root, err)
		return
	}
	st := vault.CountCategories(tree)
	fmt.Fprintf(out, "Found %d files in %s (%d notes, %d images, %d audio, %d other)\n\n",
		st.Files(), root, st.Text, st.Images, st.Audio, st.Unknown)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
