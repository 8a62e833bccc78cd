// Package syncer orchestrates one sync pass: discover new UIDs past
// the watermark, fetch, archive, extract, index, and advance the
// watermark. Each message is one committed unit of work.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-archiver/internal/archive"
	"github.com/nhle/mail-archiver/internal/extract"
	"github.com/nhle/mail-archiver/internal/identity"
	"github.com/nhle/mail-archiver/internal/index"
	"github.com/nhle/mail-archiver/internal/mailsource"
	"github.com/nhle/mail-archiver/internal/model"
)

// AccountConfig describes one account to sync.
type AccountConfig struct {
	Name    string
	Source  mailsource.Config
	Folders []string
}

// Coordinator runs sync passes against an archive store and index.
// A single coordinator assumes single-writer access per (account,
// folder); scheduling guarantees that, not the coordinator.
type Coordinator struct {
	index   *index.Store
	archive *archive.Store
	log     *zap.Logger
}

// New creates a sync coordinator.
func New(idx *index.Store, arc *archive.Store, log *zap.Logger) *Coordinator {
	return &Coordinator{index: idx, archive: arc, log: log}
}

// SyncAccount dials the account's mail source once and drains each of
// its folders in order. Connection and authentication failures, and
// store failures surfaced by SyncFolder, abort the whole account and
// are returned; everything else is counted in the result.
func (c *Coordinator) SyncAccount(
	ctx context.Context,
	dial mailsource.Dialer,
	acct AccountConfig,
	maxMessages int,
) (model.SyncResult, error) {
	start := time.Now()
	result := model.SyncResult{Account: acct.Name}

	sess, err := dial(acct.Source)
	if err != nil {
		result.Errors = 1
		result.Duration = time.Since(start)
		return result, fmt.Errorf("connecting account %s: %w", acct.Name, err)
	}
	defer func() {
		if err := sess.Logout(); err != nil {
			c.log.Debug("logout failed", zap.String("account", acct.Name), zap.Error(err))
		}
	}()

	for _, folder := range acct.Folders {
		archived, errored, err := c.SyncFolder(ctx, sess, acct.Name, folder, maxMessages)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Archived += archived
		result.Errors += errored
	}

	result.Duration = time.Since(start)
	result.Success = true
	return result, nil
}

// SyncFolder runs one pass over a single folder. Per-message fetch
// failures are counted, never raised; the returned error is reserved
// for the archive or index stores failing, which aborts the pass with
// the watermark untouched so the in-flight message is retried next
// run.
//
// Watermark policy: the watermark advances to every UID whose fetch
// was attempted, success or failure, so one corrupt message can never
// wedge a folder. A fetch failure is therefore permanent for that UID;
// it is counted and logged with the UID so it can be chased by hand.
func (c *Coordinator) SyncFolder(
	ctx context.Context,
	sess mailsource.Session,
	account, folder string,
	maxMessages int,
) (archived, errored int, err error) {
	if err := sess.SelectReadOnly(folder); err != nil {
		c.log.Warn("skipping folder, select failed",
			zap.String("account", account),
			zap.String("folder", folder),
			zap.Error(err))
		return 0, 1, nil
	}

	lastUID, err := c.index.LastUID(ctx, account, folder)
	if err != nil {
		return 0, 0, err
	}
	start := lastUID + 1

	uids, err := sess.UIDsSince(start)
	if err != nil {
		c.log.Warn("UID search failed",
			zap.String("account", account),
			zap.String("folder", folder),
			zap.Error(err))
		return 0, 1, nil
	}

	attempted := 0
	for _, uid := range uids {
		// Servers answer "N:*" with at least the newest message even
		// when it predates N; never reprocess below the watermark.
		if uid < start {
			continue
		}
		if maxMessages > 0 && attempted >= maxMessages {
			break
		}
		attempted++

		ok, err := c.processMessage(ctx, sess, account, folder, uid)
		if err != nil {
			return archived, errored, err
		}
		if ok {
			archived++
		} else {
			errored++
		}
	}

	return archived, errored, nil
}

// processMessage handles one UID end to end. It reports ok=false for
// counted per-message failures and reserves err for store failures.
func (c *Coordinator) processMessage(
	ctx context.Context,
	sess mailsource.Session,
	account, folder string,
	uid uint32,
) (ok bool, err error) {
	raw, fetchErr := sess.FetchRaw(uid)
	if fetchErr != nil || len(raw) == 0 {
		c.log.Warn("fetch failed, skipping UID permanently",
			zap.String("account", account),
			zap.String("folder", folder),
			zap.Uint32("uid", uid),
			zap.Error(fetchErr))
		// Advance past the failed UID so the folder keeps moving.
		if err := c.index.SetLastUID(ctx, account, folder, uid); err != nil {
			return false, err
		}
		return false, nil
	}

	msg := extract.Parse(raw)

	put, putErr := c.archive.Put(account, folder, uid, raw, msg.Date, msg.MessageID)
	if putErr != nil {
		// Abort the pass before any later UID can move the watermark,
		// so this message is retried on the next run.
		return false, fmt.Errorf("archiving %s/%s uid %d: %w", account, folder, uid, putErr)
	}

	rec := model.IndexRecord{
		MessageKey:  identity.IndexKey(account, folder, uid, msg.MessageID),
		Account:     account,
		Folder:      folder,
		UID:         uid,
		MessageID:   msg.MessageID,
		Date:        msg.Date,
		FromDisplay: msg.FromDisplay,
		FromEmail:   msg.FromEmail,
		ToDisplay:   msg.ToDisplay,
		Subject:     msg.Subject,
		Path:        put.Path,
		Size:        put.Size,
		Checksum:    put.Checksum,
		InsertedAt:  time.Now().UTC(),
	}

	inserted, err := c.index.CommitIngest(ctx, rec, extract.BodyText(msg))
	if err != nil {
		return false, err
	}

	if inserted {
		c.log.Debug("archived message",
			zap.String("account", account),
			zap.String("folder", folder),
			zap.Uint32("uid", uid),
			zap.String("path", put.Path))
	}
	return true, nil
}
