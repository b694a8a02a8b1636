package cmd

import (
	"fmt"
	"strings"

	"civitdl/index"
	"civitdl/internal/errs"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the index of downloaded models",
	Long: `Runs a Bleve query-string search over downloaded models. Fields can be
targeted by their names, e.g. '+creatorName:alice +tags:anime' or
'+baseModel:"SDXL 1.0"'.`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringP("query", "q", "", "Query string (alternative to the positional argument)")
	searchCmd.Flags().IntP("limit", "l", 20, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		query = strings.Join(args, " ")
	}
	if strings.TrimSpace(query) == "" {
		return errs.Inputf("Search query is empty").WithHint("Pass a query, e.g. civitdl search -q '+creatorName:alice'")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	defer idx.Close()

	res, err := index.SearchIndex(idx, query, limit)
	if err != nil {
		return errs.Inputf("Search failed for %q", query).Wrap(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d result(s) for %q\n", res.Total, query)
	for _, hit := range res.Hits {
		fmt.Fprintf(out, "%s  %v / %v  %v\n", hit.ID, hit.Fields["modelName"], hit.Fields["versionName"], hit.Fields["filePath"])
		if magnet, ok := hit.Fields["magnetLink"]; ok {
			fmt.Fprintf(out, "    %v\n", magnet)
		}
	}
	return nil
}
