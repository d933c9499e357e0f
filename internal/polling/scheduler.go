// Package polling runs the periodic full-state refresh of mounted units.
package polling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"hydrosync/internal/logger"
)

// DefaultInterval is the nominal refresh period.
const DefaultInterval = 30 * time.Second

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("polling scheduler closed")

// Refresher fetches the full state of one unit and feeds it to the store.
type Refresher interface {
	Refresh(ctx context.Context, unitID string) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context, unitID string) error

func (f RefreshFunc) Refresh(ctx context.Context, unitID string) error { return f(ctx, unitID) }

type poller struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler keeps one ticker per unit, shared by every view that mounts the
// unit. Polling continues while the push connection is up.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	log       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	units    map[string]*poller
	closed   bool
	onResult func(unitID string, err error)
}

// New creates a scheduler. An interval <= 0 uses DefaultInterval.
func New(r Refresher, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		refresher: r,
		interval:  interval,
		log:       log.With("component", "polling"),
		ctx:       ctx,
		cancel:    cancel,
		units:     make(map[string]*poller),
	}
}

// OnResult registers a hook called after every refresh attempt.
func (s *Scheduler) OnResult(fn func(unitID string, err error)) {
	s.mu.Lock()
	s.onResult = fn
	s.mu.Unlock()
}

// Start adds a reference to unitID. The first reference triggers an
// immediate refresh and starts the ticker.
func (s *Scheduler) Start(unitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if p, ok := s.units[unitID]; ok {
		p.refs++
		return nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	p := &poller{refs: 1, cancel: cancel, done: make(chan struct{})}
	s.units[unitID] = p
	go s.loop(ctx, unitID, p.done)
	s.log.Infow("polling_started", "unit_id", unitID, "interval", s.interval)
	return nil
}

// Stop drops a reference to unitID; the last one stops its ticker. A refresh
// already running is allowed to finish.
func (s *Scheduler) Stop(unitID string) {
	s.mu.Lock()
	p, ok := s.units[unitID]
	if !ok {
		s.mu.Unlock()
		return
	}
	p.refs--
	if p.refs > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.units, unitID)
	s.mu.Unlock()

	p.cancel()
	s.log.Infow("polling_stopped", "unit_id", unitID)
}

// RefreshNow runs one refresh synchronously, mounted or not.
func (s *Scheduler) RefreshNow(ctx context.Context, unitID string) error {
	return s.refresh(ctx, unitID)
}

// Active returns the units currently polled, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.units))
	for id := range s.units {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close stops every ticker and waits for the loops to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pollers := make([]*poller, 0, len(s.units))
	for id, p := range s.units {
		pollers = append(pollers, p)
		delete(s.units, id)
	}
	s.mu.Unlock()

	s.cancel()
	for _, p := range pollers {
		<-p.done
	}
}

func (s *Scheduler) loop(ctx context.Context, unitID string, done chan<- struct{}) {
	defer close(done)

	_ = s.refresh(ctx, unitID)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.refresh(ctx, unitID)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context, unitID string) error {
	err := s.refresher.Refresh(ctx, unitID)
	if err != nil && ctx.Err() == nil {
		// keep polling; the next tick is the retry
		s.log.Warnw("poll_failed", "unit_id", unitID, "err", err)
	}

	s.mu.Lock()
	hook := s.onResult
	s.mu.Unlock()
	if hook != nil {
		hook(unitID, err)
	}
	return err
}
