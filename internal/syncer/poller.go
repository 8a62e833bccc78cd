package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-archiver/internal/mailsource"
	"github.com/nhle/mail-archiver/internal/model"
)

// PollState represents the current state of an account's polling loop.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
)

// PollStatus holds the latest outcome for a single account.
type PollStatus struct {
	Account string
	State   PollState
	LastRun time.Time
	Result  model.SyncResult
	Err     error
}

// runTimeout bounds a single account sync pass.
const runTimeout = 30 * time.Minute

// accountEntry pairs an account with its trigger channel.
type accountEntry struct {
	acct    AccountConfig
	trigger chan struct{}
}

// Poller runs periodic sync passes for a set of accounts, one goroutine
// per account. Accounts never share a session, so their passes are
// independent; the single index store serializes commits internally.
type Poller struct {
	coord       *Coordinator
	dial        mailsource.Dialer
	interval    time.Duration
	maxMessages int
	log         *zap.Logger

	entries  []accountEntry
	statuses map[string]*PollStatus
	onResult func(model.SyncResult)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewPoller creates a poller that syncs each account every interval.
func NewPoller(
	coord *Coordinator,
	dial mailsource.Dialer,
	accounts []AccountConfig,
	interval time.Duration,
	maxMessages int,
	log *zap.Logger,
) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	p := &Poller{
		coord:       coord,
		dial:        dial,
		interval:    interval,
		maxMessages: maxMessages,
		log:         log,
		statuses:    make(map[string]*PollStatus),
		stopCh:      make(chan struct{}),
	}

	for _, acct := range accounts {
		p.entries = append(p.entries, accountEntry{
			acct:    acct,
			trigger: make(chan struct{}, 1),
		})
		p.statuses[acct.Name] = &PollStatus{Account: acct.Name, State: PollIdle}
	}

	return p
}

// OnResult registers a hook called after every completed pass, on the
// polling goroutine. Set it before Start.
func (p *Poller) OnResult(fn func(model.SyncResult)) {
	p.onResult = fn
}

// Start launches the polling goroutines. Each account syncs once
// immediately and then on every interval tick. Calling Start twice is
// a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for _, entry := range p.entries {
		p.wg.Add(1)
		go p.pollAccount(entry)
	}
}

// Stop halts all polling goroutines and waits for in-flight passes to
// finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// TriggerAll requests an immediate pass for every account. A request
// for an account that is already busy is dropped.
func (p *Poller) TriggerAll() {
	for _, entry := range p.entries {
		select {
		case entry.trigger <- struct{}{}:
		default:
		}
	}
}

// Trigger requests an immediate pass for one account.
func (p *Poller) Trigger(account string) {
	for _, entry := range p.entries {
		if entry.acct.Name == account {
			select {
			case entry.trigger <- struct{}{}:
			default:
			}
			return
		}
	}
}

// Statuses returns a snapshot of the latest outcome per account.
func (p *Poller) Statuses() []PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PollStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, *s)
	}
	return out
}

// pollAccount runs the polling loop for a single account.
func (p *Poller) pollAccount(entry accountEntry) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(entry.acct)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runOnce(entry.acct)
		case <-entry.trigger:
			p.runOnce(entry.acct)
		}
	}
}

// runOnce performs a single sync pass and records its status.
func (p *Poller) runOnce(acct AccountConfig) {
	p.setStatus(acct.Name, PollRunning, model.SyncResult{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := p.coord.SyncAccount(ctx, p.dial, acct, p.maxMessages)
	if err != nil {
		state := PollError
		if mailsource.IsAuthError(err) {
			p.log.Error("account needs new credentials",
				zap.String("account", acct.Name), zap.Error(err))
		} else {
			p.log.Warn("sync pass failed",
				zap.String("account", acct.Name), zap.Error(err))
		}
		p.setStatus(acct.Name, state, result, err)
	} else {
		p.setStatus(acct.Name, PollIdle, result, nil)
	}

	if p.onResult != nil {
		p.onResult(result)
	}
}

func (p *Poller) setStatus(account string, state PollState, result model.SyncResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[account]
	if !ok {
		return
	}

	status.State = state
	status.Err = err
	if state != PollRunning {
		status.LastRun = time.Now()
		status.Result = result
	}
}
