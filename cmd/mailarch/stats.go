// Stats command: archive-wide aggregates.
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mail-archiver/internal/index"
)

var (
	statsTop  int
	statsJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive totals and top senders",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "number of top senders and domains to show")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print stats as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	idx, err := index.NewStore(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	totals, err := idx.Totals(ctx)
	if err != nil {
		return fmt.Errorf("reading totals: %w", err)
	}
	senders, err := idx.TopSenders(ctx, statsTop)
	if err != nil {
		return fmt.Errorf("reading top senders: %w", err)
	}
	domains, err := idx.TopDomains(ctx, statsTop)
	if err != nil {
		return fmt.Errorf("reading top domains: %w", err)
	}

	if statsJSON {
		out, err := json.MarshalIndent(map[string]any{
			"messages":       totals.Messages,
			"bytes":          totals.Bytes,
			"unique_senders": totals.UniqueSenders,
			"top_senders":    senders,
			"top_domains":    domains,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding stats: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("messages:       %d\n", totals.Messages)
	fmt.Printf("archive size:   %s\n", humanBytes(totals.Bytes))
	fmt.Printf("unique senders: %d\n", totals.UniqueSenders)

	if len(senders) > 0 {
		fmt.Println("\ntop senders:")
		for _, s := range senders {
			fmt.Printf("  %6d  %s\n", s.Count, s.Sender)
		}
	}
	if len(domains) > 0 {
		fmt.Println("\ntop domains:")
		for _, d := range domains {
			fmt.Printf("  %6d  %s\n", d.Count, d.Domain)
		}
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
