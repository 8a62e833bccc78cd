// Migrate-account command: adopt a legacy single-account database.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mail-archiver/internal/index"
)

var migrateAccountCmd = &cobra.Command{
	Use:   "migrate-account <account>",
	Short: "Assign legacy un-partitioned index rows to an account",
	Long: `Databases written before multi-account support carry messages and
watermarks with no account attached. migrate-account assigns them all
to the given account name. Running it on an already-migrated database
changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrateAccount,
}

func runMigrateAccount(cmd *cobra.Command, args []string) error {
	idx, err := index.NewStore(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	if err := idx.MigrateLegacyAccount(context.Background(), args[0]); err != nil {
		return fmt.Errorf("migrating legacy rows: %w", err)
	}

	fmt.Printf("legacy rows now belong to %q\n", args[0])
	return nil
}
