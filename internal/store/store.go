// Package store is the single merge point for channel state. Observed events
// from polls and pushes and intended events from operator writes all land
// here; the dashboard only ever reads the displayed ChannelView.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hydrosync"
)

// Source tells where an observation came from.
type Source string

const (
	SourcePoll Source = "poll"
	SourcePush Source = "push"
	SourceAck  Source = "ack"
)

// Result of merging one observation.
type Result string

const (
	// ResultApplied means the displayed state now reflects the observation.
	ResultApplied Result = "applied"
	// ResultShadowed means the observation was stored behind a pending write.
	ResultShadowed Result = "shadowed"
	// ResultStale means every field was older than what is stored.
	ResultStale Result = "stale"
)

// Observation is a partial observed state of one channel. Nil fields are
// left untouched.
type Observation struct {
	Key        hydrosync.ChannelKey
	Relay      *hydrosync.Relay
	Mode       *hydrosync.ControlMode
	Schedule   *hydrosync.Schedule
	ObservedAt time.Time
	Source     Source
}

// Guard is evaluated under the store lock before a write is admitted.
type Guard func(view hydrosync.ChannelView) error

type field[T any] struct {
	value T
	at    time.Time
	set   bool
}

// apply stores v unless at is strictly older than the stored timestamp.
// A zero at is unsequenced and always applies without moving the clock.
func (f *field[T]) apply(v T, at time.Time) bool {
	if f.set && !at.IsZero() && at.Before(f.at) {
		return false
	}
	f.value = v
	f.set = true
	if !at.IsZero() {
		f.at = at
	}
	return true
}

type channel struct {
	key         hydrosync.ChannelKey
	relay       field[hydrosync.Relay]
	mode        field[hydrosync.ControlMode]
	schedule    field[hydrosync.Schedule]
	pending     *hydrosync.PendingOperation
	lastFailure *hydrosync.FailedOperation
}

// Store holds the observed state and pending write of every channel.
type Store struct {
	mu       sync.Mutex
	channels map[hydrosync.ChannelKey]*channel
	now      func() time.Time
	newID    func() string

	// notifyMu keeps subscriber delivery in mutation order.
	notifyMu sync.Mutex
	subs     map[int]func(hydrosync.ChannelView)
	nextSub  int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for IssuedAt/FailedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides uuid generation for pending operation IDs.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		channels: make(map[hydrosync.ChannelKey]*channel),
		now:      time.Now,
		newID:    uuid.NewString,
		subs:     make(map[int]func(hydrosync.ChannelView)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn to receive the displayed view of every channel
// that changes. fn runs on the mutating goroutine after the store lock is
// released. fn must not call back into the store or cancel itself; copy
// the view out instead.
func (s *Store) Subscribe(fn func(hydrosync.ChannelView)) (cancel func()) {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.subs, id)
			s.notifyMu.Unlock()
		})
	}
}

// ApplyObserved merges an observation from a poll, a push or an ack echo.
// The channel is created on first observation.
func (s *Store) ApplyObserved(obs Observation) Result {
	s.mu.Lock()
	ch, ok := s.channels[obs.Key]
	if !ok {
		ch = &channel{key: obs.Key}
		s.channels[obs.Key] = ch
	}
	changed := ch.observe(obs)

	res := ResultApplied
	switch {
	case !changed:
		res = ResultStale
	case ch.pending != nil:
		res = ResultShadowed
	}
	if !changed && ok {
		s.mu.Unlock()
		return res
	}
	view := ch.view()
	s.unlockAndNotify(view)
	return res
}

func (c *channel) observe(obs Observation) bool {
	changed := false
	if obs.Relay != nil && c.relay.apply(*obs.Relay, obs.ObservedAt) {
		changed = true
	}
	if obs.Mode != nil && c.mode.apply(*obs.Mode, obs.ObservedAt) {
		changed = true
	}
	if obs.Schedule != nil && c.schedule.apply(obs.Schedule.Clone(), obs.ObservedAt) {
		changed = true
	}
	return changed
}

// SubmitWrite admits op as the pending write of key. It fails with
// ErrChannelNotObserved before the first observation, ErrChannelBusy while
// another write is pending, or with the first guard error. Admission and
// pending creation are atomic.
func (s *Store) SubmitWrite(key hydrosync.ChannelKey, op hydrosync.Operation, guards ...Guard) (hydrosync.PendingOperation, error) {
	s.mu.Lock()
	ch, ok := s.channels[key]
	if !ok {
		s.mu.Unlock()
		return hydrosync.PendingOperation{}, hydrosync.ErrChannelNotObserved
	}
	if ch.pending != nil {
		s.mu.Unlock()
		return hydrosync.PendingOperation{}, hydrosync.ErrChannelBusy
	}
	current := ch.view()
	for _, g := range guards {
		if err := g(current); err != nil {
			s.mu.Unlock()
			return hydrosync.PendingOperation{}, err
		}
	}

	if op.Schedule != nil {
		c := op.Schedule.Clone()
		op.Schedule = &c
	}
	p := &hydrosync.PendingOperation{
		ID:       s.newID(),
		Key:      key,
		Op:       op,
		IssuedAt: s.now(),
		Status:   hydrosync.StatusInFlight,
	}
	ch.pending = p
	ch.lastFailure = nil
	out := *p
	s.unlockAndNotify(ch.view())
	return out, nil
}

// Acknowledge resolves pending write id as confirmed. The optimistic value
// becomes the observed value, then echoes for the same channel are merged
// on top in order. Unknown or already resolved ids are ignored.
func (s *Store) Acknowledge(id string, echoes ...Observation) bool {
	s.mu.Lock()
	ch := s.findPending(id)
	if ch == nil {
		s.mu.Unlock()
		return false
	}
	ch.fold(ch.pending.Op)
	ch.pending = nil
	ch.lastFailure = nil
	for _, echo := range echoes {
		if echo.Key == ch.key {
			ch.observe(echo)
		}
	}
	s.unlockAndNotify(ch.view())
	return true
}

// fold confirms the optimistic value without moving the field clock.
func (c *channel) fold(op hydrosync.Operation) {
	var at time.Time
	switch op.Kind {
	case hydrosync.OpToggle:
		c.relay.apply(op.Relay, at)
	case hydrosync.OpModeChange:
		c.mode.apply(op.Mode, at)
	case hydrosync.OpScheduleEdit:
		if op.Schedule != nil {
			c.schedule.apply(op.Schedule.Clone(), at)
		}
	}
}

// Fail resolves pending write id as failed and rolls the display back to
// the last stored observation. Calling it twice is a no-op.
func (s *Store) Fail(id string, cause error) bool {
	s.mu.Lock()
	ch := s.findPending(id)
	if ch == nil {
		s.mu.Unlock()
		return false
	}
	failed := *ch.pending
	failed.Status = hydrosync.StatusFailed
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	ch.lastFailure = &hydrosync.FailedOperation{Op: failed, Error: msg, FailedAt: s.now()}
	ch.pending = nil
	s.unlockAndNotify(ch.view())
	return true
}

func (s *Store) findPending(id string) *channel {
	for _, ch := range s.channels {
		if ch.pending != nil && ch.pending.ID == id {
			return ch
		}
	}
	return nil
}

// Channel returns the displayed view of key.
func (s *Store) Channel(key hydrosync.ChannelKey) (hydrosync.ChannelView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[key]
	if !ok {
		return hydrosync.ChannelView{}, false
	}
	return ch.view(), true
}

// Unit returns the displayed views of every observed channel of a unit in
// lights, fans, pump order.
func (s *Store) Unit(unitID string) []hydrosync.ChannelView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hydrosync.ChannelView, 0, len(hydrosync.Channels))
	for _, id := range hydrosync.Channels {
		if ch, ok := s.channels[hydrosync.ChannelKey{UnitID: unitID, Channel: id}]; ok {
			out = append(out, ch.view())
		}
	}
	return out
}

// Observed returns the stored observed state of key, ignoring any pending
// write.
func (s *Store) Observed(key hydrosync.ChannelKey) (hydrosync.ChannelView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[key]
	if !ok {
		return hydrosync.ChannelView{}, false
	}
	return ch.observedView(), true
}

// Pending lists all in-flight writes ordered by issue time.
func (s *Store) Pending() []hydrosync.PendingOperation {
	s.mu.Lock()
	out := make([]hydrosync.PendingOperation, 0)
	for _, ch := range s.channels {
		if ch.pending != nil {
			out = append(out, *ch.pending)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

func (c *channel) observedView() hydrosync.ChannelView {
	v := hydrosync.ChannelView{
		Key:      c.key,
		Relay:    hydrosync.RelayState{State: c.relay.value, ObservedAt: c.relay.at},
		Mode:     c.mode.value,
		Schedule: c.schedule.value.Clone(),
	}
	if c.lastFailure != nil {
		f := *c.lastFailure
		v.LastFailure = &f
	}
	return v
}

// view overlays the pending write on the observed state.
func (c *channel) view() hydrosync.ChannelView {
	v := c.observedView()
	if c.pending == nil {
		return v
	}
	p := *c.pending
	v.Pending = &p
	v.Optimistic = true
	switch p.Op.Kind {
	case hydrosync.OpToggle:
		v.Relay.State = p.Op.Relay
	case hydrosync.OpModeChange:
		v.Mode = p.Op.Mode
	case hydrosync.OpScheduleEdit:
		if p.Op.Schedule != nil {
			v.Schedule = p.Op.Schedule.Clone()
		}
	}
	return v
}

func (s *Store) unlockAndNotify(view hydrosync.ChannelView) {
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, id := range sortedKeys(s.subs) {
		s.subs[id](view)
	}
}

func sortedKeys(m map[int]func(hydrosync.ChannelView)) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
