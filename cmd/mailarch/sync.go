// Sync command: one batch pass over every configured account.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail-archiver/internal/archive"
	"github.com/nhle/mail-archiver/internal/config"
	"github.com/nhle/mail-archiver/internal/index"
	"github.com/nhle/mail-archiver/internal/mailsource"
	"github.com/nhle/mail-archiver/internal/metrics"
	"github.com/nhle/mail-archiver/internal/syncer"
)

var (
	syncAccountFilter string
	syncMaxMessages   int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and archive new messages from all accounts",
	Long: `Sync connects to each configured account, archives every message
newer than the stored watermark, and updates the search index. Runs
are idempotent: interrupting one and re-running it archives nothing
twice.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncAccountFilter, "account", "",
		"sync only the named account")
	syncCmd.Flags().IntVar(&syncMaxMessages, "max-messages", 0,
		"cap new messages per folder (0 = no cap, overrides config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	idx, err := index.NewStore(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	arc, err := archive.NewStore(cfg.ArchiveRoot)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}

	maxMessages := cfg.MaxMessages
	if cmd.Flags().Changed("max-messages") {
		maxMessages = syncMaxMessages
	}

	coord := syncer.New(idx, arc, log)

	var totalArchived, totalErrors int
	allOK := true

	for _, acct := range selectAccounts(cfg.Accounts, syncAccountFilter) {
		result, err := coord.SyncAccount(ctx, mailsource.DialIMAP, syncer.AccountConfig{
			Name: acct.Name,
			Source: mailsource.Config{
				Host:     acct.Host,
				Port:     acct.Port,
				Username: acct.Username,
				Password: acct.Password,
				TLS:      acct.TLS,
			},
			Folders: acct.Folders,
		}, maxMessages)

		totalArchived += result.Archived
		totalErrors += result.Errors

		if err != nil {
			// One broken account must not block the others.
			allOK = false
			log.Error("account sync failed",
				zap.String("account", acct.Name),
				zap.Bool("auth", mailsource.IsAuthError(err)),
				zap.Error(err))
			continue
		}

		log.Info("account synced",
			zap.String("account", acct.Name),
			zap.Int("archived", result.Archived),
			zap.Int("errors", result.Errors),
			zap.Duration("duration", result.Duration))
	}

	if err := publishMetrics(ctx, idx, totalArchived, totalErrors, time.Since(start), allOK); err != nil {
		log.Warn("publishing metrics failed", zap.Error(err))
	}

	fmt.Printf("archived %d message(s), %d error(s) in %s\n",
		totalArchived, totalErrors, time.Since(start).Round(time.Millisecond))

	if !allOK {
		return fmt.Errorf("one or more accounts failed to sync")
	}
	return nil
}

func selectAccounts(accounts []config.AccountConfig, filter string) []config.AccountConfig {
	if filter == "" {
		return accounts
	}
	var out []config.AccountConfig
	for _, a := range accounts {
		if a.Name == filter {
			out = append(out, a)
		}
	}
	return out
}

// publishMetrics records the run outcome plus fresh archive aggregates
// and emits them to whichever outputs are configured.
func publishMetrics(
	ctx context.Context,
	idx *index.Store,
	archived, errors int,
	duration time.Duration,
	success bool,
) error {
	if cfg.Metrics.TextfilePath == "" && cfg.Metrics.PushURL == "" {
		return nil
	}

	rec := metrics.NewRecorder()
	rec.RecordRun(archived, errors, duration, success)

	totals, err := idx.Totals(ctx)
	if err != nil {
		return err
	}
	rec.RecordTotals(totals)

	senders, err := idx.TopSenders(ctx, 10)
	if err != nil {
		return err
	}
	rec.RecordTopSenders(senders)

	domains, err := idx.TopDomains(ctx, 10)
	if err != nil {
		return err
	}
	rec.RecordTopDomains(domains)

	if cfg.Metrics.TextfilePath != "" {
		if err := rec.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			return err
		}
	}
	if cfg.Metrics.PushURL != "" {
		if err := rec.Push(cfg.Metrics.PushURL, cfg.Metrics.PushJob, cfg.Metrics.PushInstance); err != nil {
			return err
		}
	}
	return nil
}
