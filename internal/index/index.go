package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mail-archiver/internal/model"
)

// Sort orders accepted by Search. Anything else falls back to SortDateDesc.
const (
	SortDateDesc   = "date_desc"
	SortDateAsc    = "date_asc"
	SortFromAsc    = "from_asc"
	SortSubjectAsc = "subject_asc"
)

var sortClauses = map[string]string{
	SortDateDesc:   "m.date DESC",
	SortDateAsc:    "m.date ASC",
	SortFromAsc:    "m.from_addr ASC",
	SortSubjectAsc: "m.subject ASC",
}

// LastUID returns the sync watermark for (account, folder), or 0 when
// the folder has never been synced.
func (s *Store) LastUID(ctx context.Context, account, folder string) (uint32, error) {
	var uid uint32
	err := s.db.GetContext(ctx, &uid,
		"SELECT last_uid FROM sync_state WHERE account = ? AND folder = ?",
		account, folder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermark for %s/%s: %w", account, folder, err)
	}
	return uid, nil
}

// SetLastUID persists the sync watermark for (account, folder). The
// stored value never decreases.
func (s *Store) SetLastUID(ctx context.Context, account, folder string, uid uint32) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning watermark transaction: %w", err)
	}
	defer tx.Rollback()

	if err := setLastUIDTx(ctx, tx, account, folder, uid); err != nil {
		return err
	}
	return tx.Commit()
}

func setLastUIDTx(ctx context.Context, tx *sqlx.Tx, account, folder string, uid uint32) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (account, folder, last_uid, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account, folder) DO UPDATE SET
			last_uid   = MAX(last_uid, excluded.last_uid),
			updated_at = CURRENT_TIMESTAMP`,
		account, folder, uid,
	)
	if err != nil {
		return fmt.Errorf("writing watermark for %s/%s: %w", account, folder, err)
	}
	return nil
}

// Insert adds an index record and its full-text shadow row in one
// transaction. It returns false when a record with the same message
// key already exists; duplicate ingestion is a successful no-op.
func (s *Store) Insert(ctx context.Context, rec model.IndexRecord, bodyText string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := insertTx(ctx, tx, rec, bodyText)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing insert: %w", err)
	}
	return inserted, nil
}

// CommitIngest is the per-message unit of work of a sync pass: the
// index insert and the watermark advance commit together, so a crash
// loses at most the single in-flight message.
func (s *Store) CommitIngest(ctx context.Context, rec model.IndexRecord, bodyText string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := insertTx(ctx, tx, rec, bodyText)
	if err != nil {
		return false, err
	}
	if err := setLastUIDTx(ctx, tx, rec.Account, rec.Folder, rec.UID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing ingest: %w", err)
	}
	return inserted, nil
}

func insertTx(ctx context.Context, tx *sqlx.Tx, rec model.IndexRecord, bodyText string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (
			id, account, folder, uid, message_id, date,
			from_addr, from_email, to_addr, subject,
			path, size, checksum, inserted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MessageKey, rec.Account, rec.Folder, rec.UID, rec.MessageID, rec.Date.UTC(),
		rec.FromDisplay, rec.FromEmail, rec.ToDisplay, rec.Subject,
		rec.Path, rec.Size, rec.Checksum, rec.InsertedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting message %s: %w", rec.MessageKey, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert result: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("reading inserted rowid: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages_fts (rowid, subject, from_addr, to_addr, body_text)
		VALUES (?, ?, ?, ?, ?)`,
		rowID, rec.Subject, rec.FromDisplay, rec.ToDisplay, bodyText,
	); err != nil {
		return false, fmt.Errorf("inserting full-text row for %s: %w", rec.MessageKey, err)
	}

	return true, nil
}

// Search runs a full-text query and returns matching rows in the
// requested order. The query string is passed to FTS5 verbatim; use
// BuildQuery for untrusted input.
func (s *Store) Search(ctx context.Context, query string, limit, offset int, sort string) ([]model.SearchRow, error) {
	orderBy, ok := sortClauses[sort]
	if !ok {
		orderBy = sortClauses[SortDateDesc]
	}

	rows := []model.SearchRow{}
	err := s.db.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT m.rowid AS rowid, m.date, m.from_addr, m.subject, m.path
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?
		ORDER BY %s
		LIMIT ? OFFSET ?`, orderBy),
		query, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}
	return rows, nil
}

// Count returns the total number of full-text matches for query.
func (s *Store) Count(ctx context.Context, query string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM messages_fts WHERE messages_fts MATCH ?", query,
	)
	if err != nil {
		return 0, fmt.Errorf("counting matches for %q: %w", query, err)
	}
	return n, nil
}

// GetByRowID returns the read-back projection for a single indexed
// message, or ErrNotFound.
func (s *Store) GetByRowID(ctx context.Context, rowID int64) (*model.MessageView, error) {
	var view model.MessageView
	err := s.db.GetContext(ctx, &view, `
		SELECT rowid AS rowid, date, from_addr, subject, path
		FROM messages WHERE rowid = ?`, rowID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message row %d: %w", rowID, err)
	}
	return &view, nil
}

// Totals returns archive-wide counts: messages, bytes, and unique
// senders (by address when known, display name otherwise).
func (s *Store) Totals(ctx context.Context) (model.Totals, error) {
	var t model.Totals

	row := s.db.QueryRowxContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size), 0) FROM messages",
	)
	if err := row.Scan(&t.Messages, &t.Bytes); err != nil {
		return model.Totals{}, fmt.Errorf("reading message totals: %w", err)
	}

	err := s.db.GetContext(ctx, &t.UniqueSenders, `
		SELECT COUNT(DISTINCT COALESCE(NULLIF(from_email, ''), from_addr))
		FROM messages
		WHERE from_email != '' OR from_addr != ''`,
	)
	if err != nil {
		return model.Totals{}, fmt.Errorf("counting unique senders: %w", err)
	}

	return t, nil
}

// TopSenders returns the n most frequent senders.
func (s *Store) TopSenders(ctx context.Context, n int) ([]model.SenderCount, error) {
	if n <= 0 {
		return nil, nil
	}

	out := []model.SenderCount{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT COALESCE(NULLIF(from_email, ''), from_addr) AS sender, COUNT(*) AS c
		FROM messages
		WHERE from_email != '' OR from_addr != ''
		GROUP BY sender ORDER BY c DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("reading top senders: %w", err)
	}
	return out, nil
}

// TopDomains returns the n most frequent sender domains, parsed from
// the portion of the address after "@".
func (s *Store) TopDomains(ctx context.Context, n int) ([]model.DomainCount, error) {
	if n <= 0 {
		return nil, nil
	}

	out := []model.DomainCount{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT SUBSTR(from_email, INSTR(from_email, '@') + 1) AS domain, COUNT(*) AS c
		FROM messages
		WHERE from_email != '' AND INSTR(from_email, '@') > 0
		GROUP BY domain ORDER BY c DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("reading top domains: %w", err)
	}
	return out, nil
}
