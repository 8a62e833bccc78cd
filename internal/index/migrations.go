package index

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Each migration's
// version must be sequential starting from 1. Applied versions are
// recorded in schema_version so schema state is inspectable.
//
// v1 is the legacy single-account schema; v2 partitions messages and
// watermarks by account. Rows created under v1 are adopted by
// Store.MigrateLegacyAccount.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS folders (
	name     TEXT PRIMARY KEY,
	last_uid INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	folder      TEXT NOT NULL,
	uid         INTEGER NOT NULL,
	message_id  TEXT NOT NULL DEFAULT '',
	date        DATETIME NOT NULL,
	from_addr   TEXT NOT NULL DEFAULT '',
	from_email  TEXT NOT NULL DEFAULT '',
	to_addr     TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	inserted_at DATETIME NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	subject, from_addr, to_addr, body_text
);

CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
CREATE INDEX IF NOT EXISTS idx_messages_folder_uid ON messages(folder, uid);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE messages ADD COLUMN account TEXT NOT NULL DEFAULT '';

CREATE TABLE IF NOT EXISTS sync_state (
	account    TEXT NOT NULL,
	folder     TEXT NOT NULL,
	last_uid   INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account, folder)
);

CREATE INDEX IF NOT EXISTS idx_messages_account_folder_uid
	ON messages(account, folder, uid);
CREATE INDEX IF NOT EXISTS idx_messages_from_email
	ON messages(from_email);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
