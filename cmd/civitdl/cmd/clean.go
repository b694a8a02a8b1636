package cmd

import (
	"fmt"

	"civitdl/internal/cleanup"
	"civitdl/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [directory]",
	Short: "Remove temporary (.tmp) files left by interrupted downloads",
	Long: `Recursively scans the directory (SavePath by default) and removes files
ending in .tmp. Optionally removes *.torrent and *-magnet.txt files as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolP("torrents", "t", false, "Also remove *.torrent files")
	cleanCmd.Flags().BoolP("magnets", "m", false, "Also remove *-magnet.txt files")
	cleanCmd.Flags().Bool("dry-run", false, "Only list what would be removed")
}

func runClean(cmd *cobra.Command, args []string) error {
	var dir string
	if len(args) == 1 {
		dir = args[0]
	}
	root, err := config.ResolveDestination(globalConfig, dir)
	if err != nil {
		return err
	}

	var opts cleanup.Options
	opts.Torrents, _ = cmd.Flags().GetBool("torrents")
	opts.Magnets, _ = cmd.Flags().GetBool("magnets")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

	log.Infof("Scanning %s for leftover files...", root)
	rep, err := cleanup.Clean(root, opts)
	if err != nil {
		return fmt.Errorf("cleaning %s: %w", root, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Clean complete. %s\n", rep)
	if rep.Failed > 0 {
		return fmt.Errorf("failed to remove %d file(s)", rep.Failed)
	}
	return nil
}
