package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/mail-archiver/internal/mailsource"
	"github.com/nhle/mail-archiver/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPollerRunsInitialPass(t *testing.T) {
	c, idx, _ := newTestCoordinator(t)

	sess := newFakeSession()
	sess.add("INBOX", 1, rawMessage("<p1@b>", "poller mail", "body"))
	dial := func(cfg mailsource.Config) (mailsource.Session, error) {
		return sess, nil
	}

	var results atomic.Int32
	p := NewPoller(c, dial, []AccountConfig{
		{Name: "alice@example.com", Folders: []string{"INBOX"}},
	}, time.Hour, 0, zaptest.NewLogger(t))
	p.OnResult(func(res model.SyncResult) {
		if res.Archived == 1 {
			results.Add(1)
		}
	})

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return results.Load() >= 1 })

	last, err := idx.LastUID(context.Background(), "alice@example.com", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), last)
}

func TestPollerTriggerAll(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	sess := newFakeSession()
	sess.add("INBOX", 1, rawMessage("<t1@b>", "first", "body"))
	dial := func(cfg mailsource.Config) (mailsource.Session, error) {
		return sess, nil
	}

	var passes atomic.Int32
	p := NewPoller(c, dial, []AccountConfig{
		{Name: "alice@example.com", Folders: []string{"INBOX"}},
	}, time.Hour, 0, zaptest.NewLogger(t))
	p.OnResult(func(model.SyncResult) { passes.Add(1) })

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return passes.Load() >= 1 })

	p.TriggerAll()
	waitFor(t, func() bool { return passes.Load() >= 2 })
}

func TestPollerStatusTracksFailure(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	dial := func(cfg mailsource.Config) (mailsource.Session, error) {
		return nil, &mailsource.AuthError{Account: cfg.Username, Message: "expired"}
	}

	p := NewPoller(c, dial, []AccountConfig{
		{Name: "alice@example.com", Folders: []string{"INBOX"}},
	}, time.Hour, 0, zaptest.NewLogger(t))

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool {
		statuses := p.Statuses()
		return len(statuses) == 1 && statuses[0].State == PollError
	})

	statuses := p.Statuses()
	assert.True(t, mailsource.IsAuthError(statuses[0].Err))
}

func TestPollerStopIsIdempotent(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	p := NewPoller(c, func(cfg mailsource.Config) (mailsource.Session, error) {
		return newFakeSession(), nil
	}, nil, time.Hour, 0, zaptest.NewLogger(t))

	p.Start()
	p.Stop()
	p.Stop()
}
