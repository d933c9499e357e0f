package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hydrosync"
	"hydrosync/internal/client"
	"hydrosync/internal/logger"
	"hydrosync/internal/metrics"
	"hydrosync/internal/models"
	"hydrosync/internal/push"
	"hydrosync/internal/repository"
	"hydrosync/internal/store"
	"hydrosync/internal/validation"
)

// Event types published to watchers.
const (
	EventChannel    = "channel"
	EventConnection = "connection"
	EventSensors    = "sensors"
	EventCamera     = "camera_image"
	EventRoom       = "room_update"
)

// Event is what dashboard streams receive.
type Event struct {
	Type   string `json:"type"`
	UnitID string `json:"unit_id,omitempty"`
	Data   any    `json:"data"`
}

// SensorSnapshot is the latest sensor payload of a unit.
type SensorSnapshot struct {
	Sensors   client.UnitSensors `json:"sensors"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Syncer feeds observed state into the store: it is the poll Refresher and
// the target of push callbacks. It also fans store changes and connection
// transitions out to watchers.
type Syncer struct {
	store          *store.Store
	backend        Backend
	metrics        *metrics.Metrics
	journal        *journal
	log            *logger.Logger
	sensorTimeout  time.Duration
	now            func() time.Time
	cancelStoreSub func()

	mu            sync.Mutex
	sensors       map[string]SensorSnapshot
	everConnected bool
	watchers      map[int]func(Event)
	nextWatcher   int
}

func NewSyncer(st *store.Store, backend Backend, events repository.EventRepo, m *metrics.Metrics, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	s := &Syncer{
		store:         st,
		backend:       backend,
		metrics:       m,
		log:           log.With("component", "sync"),
		sensorTimeout: DefaultRequestTimeout,
		now:           time.Now,
		sensors:       make(map[string]SensorSnapshot),
		watchers:      make(map[int]func(Event)),
	}
	s.journal = newJournal(events, s.log)
	s.cancelStoreSub = st.Subscribe(func(v hydrosync.ChannelView) {
		s.publish(Event{Type: EventChannel, UnitID: v.Key.UnitID, Data: v})
	})
	return s
}

// Close detaches the syncer from the store.
func (s *Syncer) Close() { s.cancelStoreSub() }

// Watch registers fn for every published event. fn must not block.
func (s *Syncer) Watch(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Syncer) publish(e Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// Refresh fetches relays, schedule and sensors of a unit concurrently and
// applies whatever succeeded. The first error is returned.
func (s *Syncer) Refresh(ctx context.Context, unitID string) error {
	var (
		g       errgroup.Group
		relays  client.RelaySnapshot
		sched   client.ScheduleDocument
		sensors client.UnitSensors
		relErr  error
		schErr  error
		senErr  error
	)
	started := s.now()
	g.Go(func() error {
		relays, relErr = s.backend.GetRelays(ctx, unitID)
		return relErr
	})
	g.Go(func() error {
		sched, schErr = s.backend.GetSchedule(ctx, unitID)
		return schErr
	})
	g.Go(func() error {
		sensors, senErr = s.backend.GetUnitSensors(ctx, unitID)
		return senErr
	})
	err := g.Wait()

	if relErr == nil {
		s.apply(relayObservations(relays, store.SourcePoll))
	}
	if schErr == nil {
		s.apply(scheduleObservations(unitID, sched, started, store.SourcePoll))
	}
	if senErr == nil {
		s.storeSensors(unitID, sensors)
	}
	s.metrics.Poll(err)
	return err
}

func (s *Syncer) apply(obs []store.Observation) {
	for _, o := range obs {
		res := s.store.ApplyObserved(o)
		s.metrics.Observation(string(o.Source), string(res))
	}
}

func (s *Syncer) storeSensors(unitID string, us client.UnitSensors) {
	snap := SensorSnapshot{Sensors: us, FetchedAt: s.now()}
	s.mu.Lock()
	s.sensors[unitID] = snap
	s.mu.Unlock()
	s.publish(Event{Type: EventSensors, UnitID: unitID, Data: snap})
}

// Sensors returns the cached sensor snapshot of a unit.
func (s *Syncer) Sensors(unitID string) (SensorSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.sensors[unitID]
	return snap, ok
}

// HandleRelay merges a pushed relay state. Values other than ON/OFF are
// logged and dropped.
func (s *Syncer) HandleRelay(e push.RelayEvent) {
	state, err := hydrosync.ParseRelay(string(e.State.State))
	if err != nil {
		s.log.Warnw("push_relay_invalid", "key", e.Key.String(), "err", err)
		return
	}
	s.apply([]store.Observation{{
		Key:        e.Key,
		Relay:      &state,
		ObservedAt: e.State.ObservedAt,
		Source:     store.SourcePush,
	}})
}

// HandleSensor refetches sensor readings off the push read goroutine.
func (s *Syncer) HandleSensor(e push.SensorEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.sensorTimeout)
		defer cancel()
		us, err := s.backend.GetUnitSensors(ctx, e.UnitID)
		if err != nil {
			s.log.Warnw("sensor_fetch_failed", "unit_id", e.UnitID, "err", err)
			return
		}
		s.storeSensors(e.UnitID, us)
	}()
}

// HandlePassthrough forwards global frames untouched.
func (s *Syncer) HandlePassthrough(f push.Frame) {
	typ := EventCamera
	if f.Type == push.TypeRoomUpdate {
		typ = EventRoom
	}
	s.publish(Event{Type: typ, Data: f.Data})
}

// HandleConnection records a push connection transition.
func (s *Syncer) HandleConnection(st hydrosync.ConnectionState) {
	s.mu.Lock()
	reconnect := st.Connected && s.everConnected
	if st.Connected {
		s.everConnected = true
	}
	s.mu.Unlock()

	s.metrics.PushState(st.Connected, reconnect)
	if st.Connected {
		s.log.Infow("push_state", "connected", true, "reconnect", reconnect)
		s.journal.record(models.EventConnected, nil, "push connected", map[string]any{"reconnect": reconnect})
	} else {
		s.log.Warnw("push_state", "connected", false, "err", hydrosync.ErrStaleConnection)
		s.journal.record(models.EventDisconnected, nil, "push disconnected", nil)
	}
	s.publish(Event{Type: EventConnection, Data: st})
}

func relayObservations(snap client.RelaySnapshot, src store.Source) []store.Observation {
	at := snap.ObservedAt()
	out := make([]store.Observation, 0, len(snap.Relays))
	for _, ch := range hydrosync.Channels {
		r, ok := snap.Relays[ch]
		if !ok {
			continue
		}
		state, err := hydrosync.ParseRelay(string(r))
		if err != nil {
			continue
		}
		out = append(out, store.Observation{
			Key:        hydrosync.ChannelKey{UnitID: snap.UnitID, Channel: ch},
			Relay:      &state,
			ObservedAt: at,
			Source:     src,
		})
	}
	return out
}

func modeObservations(unitID string, modes map[hydrosync.ChannelID]hydrosync.ControlMode, at time.Time, src store.Source) []store.Observation {
	out := make([]store.Observation, 0, len(modes))
	for _, ch := range hydrosync.Channels {
		m, ok := modes[ch]
		if !ok {
			continue
		}
		if _, err := hydrosync.ParseMode(string(m)); err != nil {
			continue
		}
		out = append(out, store.Observation{
			Key:        hydrosync.ChannelKey{UnitID: unitID, Channel: ch},
			Mode:       &m,
			ObservedAt: at,
			Source:     src,
		})
	}
	return out
}

// scheduleObservations yields one observation per channel carrying its
// control mode and, when present, its schedule.
func scheduleObservations(unitID string, doc client.ScheduleDocument, at time.Time, src store.Source) []store.Observation {
	out := make([]store.Observation, 0, len(hydrosync.Channels))
	for _, ch := range hydrosync.Channels {
		o := store.Observation{
			Key:        hydrosync.ChannelKey{UnitID: unitID, Channel: ch},
			ObservedAt: at,
			Source:     src,
		}
		if m, ok := doc.ControlModes[ch]; ok {
			if _, err := hydrosync.ParseMode(string(m)); err == nil {
				o.Mode = &m
			}
		}
		if sc := doc.ScheduleFor(ch); !sc.IsZero() && validation.ValidateSchedule(ch, sc) == nil {
			o.Schedule = &sc
		}
		if o.Mode == nil && o.Schedule == nil {
			continue
		}
		out = append(out, o)
	}
	return out
}
