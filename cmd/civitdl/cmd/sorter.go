package cmd

import (
	"fmt"
	"text/tabwriter"

	"civitdl/internal/layout"

	"github.com/spf13/cobra"
)

var sorterCmd = &cobra.Command{
	Use:   "sorter",
	Short: "Inspect the layouts available to download --sorter",
}

var sorterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and configured sorters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := layout.NewRegistry(globalConfig.Sorters)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Name\tDescription")
		for _, s := range registry.List() {
			fmt.Fprintf(tw, "%s\t%s\n", s.Name(), s.Description())
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sorterCmd)
	sorterCmd.AddCommand(sorterListCmd)
}
