package model

import "time"

// IndexRecord is the metadata row stored for one archived message.
// MessageKey is derived from (account, folder, uid, message id) and is
// the idempotency key for insertion: re-ingesting the same logical
// message resolves to the same key and becomes a no-op.
type IndexRecord struct {
	MessageKey  string    `db:"id"`
	Account     string    `db:"account"`
	Folder      string    `db:"folder"`
	UID         uint32    `db:"uid"`
	MessageID   string    `db:"message_id"`
	Date        time.Time `db:"date"`
	FromDisplay string    `db:"from_addr"`
	FromEmail   string    `db:"from_email"`
	ToDisplay   string    `db:"to_addr"`
	Subject     string    `db:"subject"`
	Path        string    `db:"path"`
	Size        int64     `db:"size"`
	Checksum    string    `db:"checksum"`
	InsertedAt  time.Time `db:"inserted_at"`
}

// SearchRow is one full-text search hit.
type SearchRow struct {
	RowID   int64     `db:"rowid" json:"id"`
	Date    time.Time `db:"date" json:"date"`
	From    string    `db:"from_addr" json:"from"`
	Subject string    `db:"subject" json:"subject"`
	Path    string    `db:"path" json:"path"`
}

// MessageView is the read-back projection used by the web consumer
// before resolving the stored path to a real file.
type MessageView struct {
	RowID   int64     `db:"rowid"`
	Date    time.Time `db:"date"`
	From    string    `db:"from_addr"`
	Subject string    `db:"subject"`
	Path    string    `db:"path"`
}

// Totals holds archive-wide aggregates.
type Totals struct {
	Messages      int64
	Bytes         int64
	UniqueSenders int64
}

// SenderCount is one entry of a top-senders aggregate.
type SenderCount struct {
	Sender string `db:"sender" json:"sender"`
	Count  int64  `db:"c" json:"count"`
}

// DomainCount is one entry of a top-domains aggregate. The domain is
// the portion of the sender address after "@".
type DomainCount struct {
	Domain string `db:"domain" json:"domain"`
	Count  int64  `db:"c" json:"count"`
}

// SyncResult summarizes one sync run for a single account.
type SyncResult struct {
	Account  string
	Archived int
	Errors   int
	Duration time.Duration
	Success  bool
}
