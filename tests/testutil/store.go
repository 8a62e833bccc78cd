// Package testutil provides shared store fixtures for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/mail-archiver/internal/archive"
	"github.com/nhle/mail-archiver/internal/index"
)

// NewIndexStore creates a file-backed index store in a temp directory
// with all migrations applied. A file, not :memory:, because the
// connection pool would otherwise hand each connection its own empty
// database. The store is closed when the test completes.
func NewIndexStore(t *testing.T) *index.Store {
	t.Helper()

	s, err := index.NewStore(filepath.Join(t.TempDir(), "mail.db"))
	if err != nil {
		t.Fatalf("creating test index store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test index store: %v", err)
		}
	})

	return s
}

// NewArchiveStore creates an archive store rooted in a temp directory.
func NewArchiveStore(t *testing.T) *archive.Store {
	t.Helper()

	s, err := archive.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating test archive store: %v", err)
	}
	return s
}
