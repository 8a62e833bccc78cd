// Serve command: read-only HTTP API over the archive.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail-archiver/internal/archive"
	"github.com/nhle/mail-archiver/internal/index"
	"github.com/nhle/mail-archiver/internal/metrics"
	"github.com/nhle/mail-archiver/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search and download HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	idx, err := index.NewStore(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	arc, err := archive.NewStore(cfg.ArchiveRoot)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}

	rec := metrics.NewRecorder()

	srv := web.NewServer(idx, arc, knownFolders(), rec.Registry(), log)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	log.Info("serving HTTP API", zap.String("addr", addr))
	return srv.Run(addr)
}

// knownFolders returns every folder name any account archives from,
// used to re-root legacy stored paths on download.
func knownFolders() []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range cfg.Accounts {
		for _, f := range a.Folders {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if len(out) == 0 {
		out = []string{"INBOX"}
	}
	return out
}
