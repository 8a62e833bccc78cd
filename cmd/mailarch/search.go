// Search command: full-text query against the local index.
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mail-archiver/internal/index"
)

var (
	searchPage     int
	searchPageSize int
	searchSort     string
	searchRaw      bool
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search archived messages",
	Long: `Search runs a full-text query over subject, sender, recipients, and
body text. Terms are matched literally and combined with AND; pass
--raw to use the full FTS5 query syntax instead.

Example:
  mailarch search "invoice march"
  mailarch search --raw 'subject:invoice AND from_addr:billing'`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page")
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", 50, "results per page (max 200)")
	searchCmd.Flags().StringVar(&searchSort, "sort", index.SortDateDesc,
		"sort order: date_desc, date_asc, from_asc, subject_asc")
	searchCmd.Flags().BoolVar(&searchRaw, "raw", false, "treat the query as raw FTS5 syntax")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	idx, err := index.NewStore(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	query := index.BuildQuery(args[0], !searchRaw)
	if query == "" {
		fmt.Println("no results")
		return nil
	}

	limit, offset := index.Paginate(searchPage, searchPageSize)

	rows, err := idx.Search(ctx, query, limit, offset, searchSort)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	total, err := idx.Count(ctx, query)
	if err != nil {
		return fmt.Errorf("counting results: %w", err)
	}

	if searchJSON {
		out, err := json.MarshalIndent(map[string]any{
			"total":   total,
			"results": rows,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(rows) == 0 {
		fmt.Println("no results")
		return nil
	}

	for _, row := range rows {
		fmt.Printf("%-8d %s  %-30.30s  %s\n",
			row.RowID, row.Date.Format("2006-01-02"), row.From, row.Subject)
	}
	fmt.Printf("\n%d result(s), page %d\n", total, searchPage)
	return nil
}
