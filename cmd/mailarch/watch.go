// Watch command: keep syncing on an interval until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail-archiver/internal/archive"
	"github.com/nhle/mail-archiver/internal/index"
	"github.com/nhle/mail-archiver/internal/mailsource"
	"github.com/nhle/mail-archiver/internal/model"
	"github.com/nhle/mail-archiver/internal/syncer"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync all accounts periodically until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 15*time.Minute,
		"time between sync passes per account")
}

func runWatch(cmd *cobra.Command, args []string) error {
	idx, err := index.NewStore(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	arc, err := archive.NewStore(cfg.ArchiveRoot)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}

	var accounts []syncer.AccountConfig
	for _, a := range cfg.Accounts {
		accounts = append(accounts, syncer.AccountConfig{
			Name: a.Name,
			Source: mailsource.Config{
				Host:     a.Host,
				Port:     a.Port,
				Username: a.Username,
				Password: a.Password,
				TLS:      a.TLS,
			},
			Folders: a.Folders,
		})
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}

	coord := syncer.New(idx, arc, log)
	poller := syncer.NewPoller(coord, mailsource.DialIMAP, accounts,
		watchInterval, cfg.MaxMessages, log)

	poller.OnResult(func(res model.SyncResult) {
		if err := publishMetrics(context.Background(), idx,
			res.Archived, res.Errors, res.Duration, res.Success); err != nil {
			log.Warn("publishing metrics failed", zap.Error(err))
		}
	})

	poller.Start()
	log.Info("watching accounts",
		zap.Int("accounts", len(accounts)),
		zap.Duration("interval", watchInterval))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down, waiting for in-flight passes")
	poller.Stop()
	return nil
}
