package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanFlags struct {
	output bool
}

var cleanCmd = &cobra.Command{
	Use:   "clean [vault]",
	Short: "Delete the build report",
	Long: `Deletes the build report so the next build publishes every file.

The --output flag also deletes the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanFlags.output, "output", false,
		"Also delete the output directory")

	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	root, err := resolveVault(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	paths := resolvePaths(root, cfg)
	builder, err := newBuilder(paths, builderOptions(paths, cfg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	store := builder.NewStore()
	if store.ReportExists() {
		if err := store.ClearReport(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %s\n", relTo(root, paths.report))
	} else {
		fmt.Fprintln(out, "No build report to remove")
	}

	if cleanFlags.output {
		if err := builder.RemoveOutput(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %s\n", relTo(root, paths.output))
	}
	return nil
}
