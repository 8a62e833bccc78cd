// Package archive persists raw messages as immutable .eml files under a
// date-partitioned directory tree and resolves stored paths back to
// real files for read-back.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/mail-archiver/internal/identity"
)

// unsafeChars matches everything outside the safe path-component set.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store writes raw message bytes below a fixed root directory. Files
// are write-once: a path that already exists is never rewritten.
type Store struct {
	root string
}

// PutResult describes where a message payload lives on disk.
type PutResult struct {
	Path     string
	Size     int64
	Checksum string
}

// NewStore creates an archive store rooted at root, creating the
// directory if needed.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving archive root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive root %s: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute archive root directory.
func (s *Store) Root() string {
	return s.root
}

// Put archives a raw message under
// root/{account}/{folder}/{yyyy}/{mm}/{dd}/{uid}_{hash}.eml.
//
// The target path is a pure function of the inputs, so retrying the
// same message lands on the same path. An existing file is trusted and
// left untouched; otherwise the payload goes to a temporary sibling
// first and is renamed into place, so a partially-written file is
// never visible under the final name.
func (s *Store) Put(
	account, folder string,
	uid uint32,
	raw []byte,
	date time.Time,
	messageID string,
) (PutResult, error) {
	dir := filepath.Join(
		s.root,
		sanitizeAccount(account),
		sanitizeFolder(folder),
		date.Format("2006"),
		date.Format("01"),
		date.Format("02"),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PutResult{}, fmt.Errorf("creating archive directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%d_%s.eml", uid, identity.ShortHash(messageID, raw))
	path := filepath.Join(dir, name)

	result := PutResult{
		Path:     path,
		Size:     int64(len(raw)),
		Checksum: identity.Checksum(raw),
	}

	if _, err := os.Stat(path); err == nil {
		// Already archived by a prior run.
		return result, nil
	} else if !os.IsNotExist(err) {
		return PutResult{}, fmt.Errorf("checking archive path %s: %w", path, err)
	}

	if err := writeAtomic(dir, name, path, raw); err != nil {
		return PutResult{}, err
	}

	return result, nil
}

// writeAtomic writes data to a temporary sibling in dir and renames it
// to path.
func writeAtomic(dir, name, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s to %s: %w", tmpName, path, err)
	}

	return nil
}

// sanitizeAccount maps an account name to a safe, lowercased path
// component.
func sanitizeAccount(account string) string {
	return sanitizeComponent(strings.ToLower(account), "account")
}

// sanitizeFolder maps a folder name to a safe path component. Folder
// names are case-sensitive on the mail source, so case is preserved.
func sanitizeFolder(folder string) string {
	return sanitizeComponent(folder, "folder")
}

func sanitizeComponent(value, fallback string) string {
	safe := unsafeChars.ReplaceAllString(strings.TrimSpace(value), "_")
	safe = strings.Trim(safe, "._-")
	if safe == "" {
		return fallback
	}
	return safe
}
