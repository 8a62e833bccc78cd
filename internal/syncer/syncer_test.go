package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/mail-archiver/internal/archive"
	"github.com/nhle/mail-archiver/internal/index"
	"github.com/nhle/mail-archiver/internal/mailsource"
	"github.com/nhle/mail-archiver/tests/testutil"
)

// fakeSession serves canned messages per folder, keyed by UID.
type fakeSession struct {
	folders    map[string]map[uint32][]byte
	fetchFails map[uint32]error
	selected   string
	fetchCalls []uint32
	loggedOut  bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		folders:    map[string]map[uint32][]byte{},
		fetchFails: map[uint32]error{},
	}
}

func (f *fakeSession) add(folder string, uid uint32, raw []byte) {
	if f.folders[folder] == nil {
		f.folders[folder] = map[uint32][]byte{}
	}
	f.folders[folder][uid] = raw
}

func (f *fakeSession) SelectReadOnly(folder string) error {
	if _, ok := f.folders[folder]; !ok {
		return fmt.Errorf("no such folder: %s", folder)
	}
	f.selected = folder
	return nil
}

func (f *fakeSession) UIDsSince(start uint32) ([]uint32, error) {
	var uids []uint32
	var newest uint32
	for uid := range f.folders[f.selected] {
		if uid > newest {
			newest = uid
		}
		if uid >= start {
			uids = append(uids, uid)
		}
	}
	// Real servers answer "N:*" with at least the newest message even
	// when its UID is below N.
	if len(uids) == 0 && newest > 0 {
		uids = append(uids, newest)
	}
	slices.Sort(uids)
	return uids, nil
}

func (f *fakeSession) FetchRaw(uid uint32) ([]byte, error) {
	f.fetchCalls = append(f.fetchCalls, uid)
	if err, ok := f.fetchFails[uid]; ok {
		return nil, err
	}
	raw, ok := f.folders[f.selected][uid]
	if !ok {
		return nil, fmt.Errorf("no message with UID %d", uid)
	}
	return raw, nil
}

func (f *fakeSession) Logout() error {
	f.loggedOut = true
	return nil
}

func rawMessage(messageID, subject, body string) []byte {
	msg := "From: Alice <alice@example.com>\r\n" +
		"To: Bob <bob@example.com>\r\n"
	if messageID != "" {
		msg += "Message-ID: " + messageID + "\r\n"
	}
	msg += "Date: Thu, 07 Mar 2024 10:00:00 +0000\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		body + "\r\n"
	return []byte(msg)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *index.Store, *archive.Store) {
	t.Helper()

	idx := testutil.NewIndexStore(t)
	arc := testutil.NewArchiveStore(t)
	return New(idx, arc, zaptest.NewLogger(t)), idx, arc
}

func TestSyncFolderEndToEnd(t *testing.T) {
	c, idx, arc := newTestCoordinator(t)
	ctx := context.Background()

	sess := newFakeSession()
	sess.add("INBOX", 10, rawMessage("", "hello foo", "plain text one"))
	sess.add("INBOX", 11, rawMessage("<x@y>", "hello bar", "plain text two"))

	archived, errored, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)
	assert.Equal(t, 0, errored)

	last, err := idx.LastUID(ctx, "alice@example.com", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(11), last)

	var files []string
	err = filepath.WalkDir(arc.Root(), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	rows, err := idx.Search(ctx, `"bar"`, 10, 0, index.SortDateDesc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello bar", rows[0].Subject)
}

func TestSyncFolderRerunIsIdempotent(t *testing.T) {
	c, idx, _ := newTestCoordinator(t)
	ctx := context.Background()

	sess := newFakeSession()
	sess.add("INBOX", 5, rawMessage("<a@b>", "first", "body"))

	archived, _, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	// Second pass finds nothing above the watermark.
	sess.fetchCalls = nil
	archived, errored, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, archived)
	assert.Equal(t, 0, errored)
	assert.Empty(t, sess.fetchCalls)

	n, err := idx.Count(ctx, `"first"`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSyncFolderFetchFailureAdvancesWatermark(t *testing.T) {
	c, idx, _ := newTestCoordinator(t)
	ctx := context.Background()

	sess := newFakeSession()
	sess.add("INBOX", 1, rawMessage("<ok1@b>", "good one", "body"))
	sess.add("INBOX", 2, rawMessage("<bad@b>", "broken", "body"))
	sess.add("INBOX", 3, rawMessage("<ok3@b>", "good two", "body"))
	sess.fetchFails[2] = errors.New("server dropped connection")

	archived, errored, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)
	assert.Equal(t, 1, errored)

	last, err := idx.LastUID(ctx, "alice@example.com", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), last)

	// The failed UID is skipped permanently on the next pass.
	sess.fetchCalls = nil
	delete(sess.fetchFails, 2)
	_, _, err = c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.NotContains(t, sess.fetchCalls, uint32(2))
}

func TestSyncFolderArchiveFailureKeepsMessageRetryable(t *testing.T) {
	c, idx, arc := newTestCoordinator(t)
	ctx := context.Background()

	sess := newFakeSession()
	sess.add("INBOX", 5, rawMessage("<a5@b>", "first", "body"))
	sess.add("INBOX", 6, rawMessage("<a6@b>", "second", "body"))

	// Block the day directory with a regular file so the write fails.
	dayDir := filepath.Join(arc.Root(), "alice_example.com", "INBOX", "2024", "03", "07")
	require.NoError(t, os.MkdirAll(filepath.Dir(dayDir), 0o755))
	require.NoError(t, os.WriteFile(dayDir, []byte("in the way"), 0o644))

	archived, _, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.Error(t, err)
	assert.Equal(t, 0, archived)

	// The pass aborted before any UID could move the watermark.
	last, err := idx.LastUID(ctx, "alice@example.com", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), last)

	// Clearing the obstruction lets the next pass archive both.
	require.NoError(t, os.Remove(dayDir))
	archived, errored, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)
	assert.Equal(t, 0, errored)
	assert.Contains(t, sess.fetchCalls, uint32(5))

	last, err = idx.LastUID(ctx, "alice@example.com", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), last)
}

func TestSyncFolderSkipsUIDsBelowWatermark(t *testing.T) {
	c, idx, _ := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, idx.SetLastUID(ctx, "alice@example.com", "INBOX", 20))

	// Servers include the newest message in a "N:*" answer even when
	// its UID is below N; the coordinator must not reprocess it.
	sess := newFakeSession()
	sess.add("INBOX", 15, rawMessage("<old@b>", "old news", "body"))

	archived, errored, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, archived)
	assert.Equal(t, 0, errored)
	assert.Empty(t, sess.fetchCalls)
}

func TestSyncFolderMaxMessagesCap(t *testing.T) {
	c, idx, _ := newTestCoordinator(t)
	ctx := context.Background()

	sess := newFakeSession()
	for uid := uint32(1); uid <= 5; uid++ {
		sess.add("INBOX", uid, rawMessage(fmt.Sprintf("<m%d@b>", uid), fmt.Sprintf("msg %d", uid), "body"))
	}

	archived, _, err := c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)

	last, err := idx.LastUID(ctx, "alice@example.com", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), last)

	// The remainder arrives on the next pass.
	archived, _, err = c.SyncFolder(ctx, sess, "alice@example.com", "INBOX", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, archived)
}

func TestSyncAccountSkipsBadFolder(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	sess := newFakeSession()
	sess.add("INBOX", 1, rawMessage("<a@b>", "kept", "body"))

	dial := func(cfg mailsource.Config) (mailsource.Session, error) {
		return sess, nil
	}

	acct := AccountConfig{
		Name:    "alice@example.com",
		Folders: []string{"Missing", "INBOX"},
	}

	result, err := c.SyncAccount(ctx, dial, acct, 0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, 1, result.Errors)
	assert.True(t, sess.loggedOut)
}

func TestSyncAccountAuthFailureAborts(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	dial := func(cfg mailsource.Config) (mailsource.Session, error) {
		return nil, &mailsource.AuthError{Account: cfg.Username, Message: "bad password"}
	}

	acct := AccountConfig{
		Name:    "alice@example.com",
		Source:  mailsource.Config{Username: "alice@example.com"},
		Folders: []string{"INBOX"},
	}

	result, err := c.SyncAccount(ctx, dial, acct, 0)
	require.Error(t, err)
	assert.True(t, mailsource.IsAuthError(err))
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Errors)
}
