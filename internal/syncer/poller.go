package syncer

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"
)

// PollState represents the current state of the background sync loop.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
)

// PollStatus holds the outcome of the most recent run.
type PollStatus struct {
	State    PollState
	LastSync time.Time
	Result   *Result
	Err      error
}

// runTimeout is the maximum time allowed for a single sync run.
const runTimeout = 5 * time.Minute

// Poller re-runs an incremental sync on a fixed interval, with support
// for on-demand triggers between ticks.
type Poller struct {
	runner    *Runner
	opts      Options
	interval  time.Duration
	logger    *zap.Logger
	resultCh  chan PollStatus
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      gosync.Mutex
	status  PollStatus
	running bool
}

// NewPoller creates a Poller around an existing Runner. An interval of
// zero or less falls back to two minutes.
func NewPoller(r *Runner, opts Options, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		runner:    r,
		opts:      opts,
		interval:  interval,
		logger:    logger,
		resultCh:  make(chan PollStatus, 16),
		triggerCh: make(chan struct{}, 16),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling loop. It is a no-op when already running.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()
}

// Stop halts the polling loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Trigger requests an immediate run between ticks without blocking.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// Channel full; a run is already queued
	}
}

// Status returns the state of the most recent run.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Results exposes the stream of per-run statuses. The channel is
// never closed; callers select against their own done signal.
func (p *Poller) Results() <-chan PollStatus {
	return p.resultCh
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial run immediately
	p.runOnce()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runOnce()
		case <-p.triggerCh:
			p.runOnce()
		}
	}
}

// runOnce performs a single sync run and records its status. A run
// already in flight is skipped silently, never queued behind.
func (p *Poller) runOnce() {
	prev := p.Status()
	p.setStatus(PollStatus{State: PollRunning})

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := p.runner.Run(ctx, p.opts)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			// Skipped run; the status from before the attempt stands.
			p.setStatus(prev)
			return
		}
		p.logger.Warn("background sync failed", zap.Error(err))
		st := PollStatus{State: PollError, Err: err}
		p.setStatus(st)
		p.sendResult(st)
		return
	}

	st := PollStatus{
		State:    PollIdle,
		LastSync: time.Now(),
		Result:   result,
	}
	p.setStatus(st)
	p.sendResult(st)
}

func (p *Poller) setStatus(st PollStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.LastSync.IsZero() {
		st.LastSync = p.status.LastSync
	}
	p.status = st
}

// sendResult publishes a status without blocking the loop.
func (p *Poller) sendResult(st PollStatus) {
	select {
	case p.resultCh <- st:
	default:
	}
}
