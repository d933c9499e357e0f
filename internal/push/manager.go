// Package push keeps one logical WebSocket connection to the backend event
// feed, joins the rooms of mounted units and fans inbound events out to the
// registered callbacks.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hydrosync"
	"hydrosync/internal/logger"
	"hydrosync/internal/retry"
)

// Frame types on the wire.
const (
	TypeJoinUnit     = "join_unit"
	TypeLeaveUnit    = "leave_unit"
	TypeRelayUpdate  = "relay_update"
	TypeSensorUpdate = "sensor_update"
	TypeRoomUpdate   = "room_update"
	TypeCameraImage  = "camera_image"
	TypeConnected    = "connected"
	TypeJoined       = "joined"
	TypeLeft         = "left"
)

const maxFrameSize = 1 << 16

// Frame is the JSON envelope exchanged with the backend.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type unitRef struct {
	UnitID string `json:"unit_id"`
}

type relayUpdate struct {
	UnitID    string                                  `json:"unit_id"`
	Timestamp int64                                   `json:"timestamp"`
	Relays    map[hydrosync.ChannelID]hydrosync.Relay `json:"relays"`
}

type sensorUpdate struct {
	UnitID    string `json:"unit_id"`
	Timestamp int64  `json:"timestamp"`
}

// RelayEvent is one channel of a relay_update.
type RelayEvent struct {
	Key   hydrosync.ChannelKey
	State hydrosync.RelayState
}

// SensorEvent signals that new sensor readings exist for a unit.
type SensorEvent struct {
	UnitID string
	At     time.Time
}

// Config holds connection and keepalive settings.
type Config struct {
	URL              string
	Backoff          retry.Config
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the keepalive defaults with a 1s..30s reconnect backoff.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		Backoff:          retry.DefaultConfig(),
		PingInterval:     30 * time.Second,
		PongWait:         60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Manager owns the push connection. Construct with New, run with Run,
// tear down by cancelling the context passed to Run.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logger.Logger

	// mu guards everything below and serializes writes to conn.
	mu    sync.Mutex
	refs  map[string]int
	conn  *websocket.Conn
	state hydrosync.ConnectionState

	onRelay       func(RelayEvent)
	onSensor      func(SensorEvent)
	onPassthrough func(Frame)
	onState       func(hydrosync.ConnectionState)
}

// New creates a disconnected manager.
func New(cfg Config, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = (cfg.PongWait * 9) / 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		log:    log.With("component", "push"),
		refs:   make(map[string]int),
	}
}

// OnRelay sets the callback for per-channel relay events.
func (m *Manager) OnRelay(cb func(RelayEvent)) {
	m.mu.Lock()
	m.onRelay = cb
	m.mu.Unlock()
}

// OnSensor sets the callback for sensor_update events.
func (m *Manager) OnSensor(cb func(SensorEvent)) {
	m.mu.Lock()
	m.onSensor = cb
	m.mu.Unlock()
}

// OnPassthrough sets the callback for global frames (camera_image,
// room_update) delivered untouched.
func (m *Manager) OnPassthrough(cb func(Frame)) {
	m.mu.Lock()
	m.onPassthrough = cb
	m.mu.Unlock()
}

// OnStateChange sets the callback for connect/disconnect transitions.
func (m *Manager) OnStateChange(cb func(hydrosync.ConnectionState)) {
	m.mu.Lock()
	m.onState = cb
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() hydrosync.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe adds a reference to unitID; the first one joins the unit room.
func (m *Manager) Subscribe(unitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[unitID]++
	if m.refs[unitID] == 1 && m.conn != nil {
		m.sendLocked(TypeJoinUnit, unitRef{UnitID: unitID})
	}
}

// Unsubscribe drops a reference to unitID; the last one leaves the room.
// Extra calls are ignored.
func (m *Manager) Unsubscribe(unitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.refs[unitID]
	if !ok {
		return
	}
	if n > 1 {
		m.refs[unitID] = n - 1
		return
	}
	delete(m.refs, unitID)
	if m.conn != nil {
		m.sendLocked(TypeLeaveUnit, unitRef{UnitID: unitID})
	}
}

// Subscribed returns the units with a positive reference count, sorted.
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribedLocked()
}

func (m *Manager) subscribedLocked() []string {
	out := make([]string, 0, len(m.refs))
	for id := range m.refs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// sendLocked writes one frame. Errors are logged; the read loop notices a
// dead connection on its own.
func (m *Manager) sendLocked(typ string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		m.log.Errorw("push_encode_failed", "type", typ, "err", err)
		return
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := m.conn.WriteJSON(Frame{Type: typ, Data: raw}); err != nil {
		m.log.Warnw("push_write_failed", "type", typ, "err", err)
	}
}

// Run dials, serves and redials with capped exponential backoff until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
		if err != nil {
			attempt++
			m.log.Warnw("push_dial_failed", "url", m.cfg.URL, "attempt", attempt, "err", err)
			if m.cfg.Backoff.Wait(ctx, attempt) != nil {
				return nil
			}
			continue
		}

		attempt = 0
		err = m.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warnw("push_connection_lost", "err", fmt.Errorf("%w: %w", hydrosync.ErrStaleConnection, err))
		attempt++
		if m.cfg.Backoff.Wait(ctx, attempt) != nil {
			return nil
		}
	}
}

// serve runs one connection until it breaks or ctx is done.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})

	m.mu.Lock()
	m.conn = conn
	units := m.subscribedLocked()
	for _, id := range units {
		m.sendLocked(TypeJoinUnit, unitRef{UnitID: id})
	}
	m.state.Connected = true
	st, cb := m.state, m.onState
	m.mu.Unlock()

	m.log.Infow("push_connected", "url", m.cfg.URL, "units", units)
	if cb != nil {
		cb(st)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.keepalive(ctx, conn, done)
	}()

	err := m.readLoop(conn)

	close(done)
	_ = conn.Close()
	wg.Wait()

	m.mu.Lock()
	m.conn = nil
	m.state.Connected = false
	st, cb = m.state, m.onState
	m.mu.Unlock()
	if cb != nil {
		cb(st)
	}
	return err
}

// keepalive pings on a ticker and closes conn when ctx ends so the read
// loop unblocks.
func (m *Manager) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			m.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.WriteTimeout))
			m.mu.Unlock()
			if err != nil {
				m.log.Infow("push_ping_failed", "err", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.log.Warnw("push_frame_malformed", "err", err)
			continue
		}
		m.mu.Lock()
		m.state.LastEventAt = time.Now()
		m.mu.Unlock()

		if err := m.dispatch(f); err != nil {
			m.log.Warnw("push_frame_rejected", "type", f.Type, "err", err)
		}
	}
}

var errNoUnit = errors.New("missing unit_id")

func (m *Manager) dispatch(f Frame) error {
	switch f.Type {
	case TypeRelayUpdate:
		var u relayUpdate
		if err := json.Unmarshal(f.Data, &u); err != nil {
			return err
		}
		if u.UnitID == "" {
			return errNoUnit
		}
		m.mu.Lock()
		joined, cb := m.refs[u.UnitID] > 0, m.onRelay
		m.mu.Unlock()
		if !joined || cb == nil {
			return nil
		}
		at := unixUTC(u.Timestamp)
		for _, ch := range hydrosync.Channels {
			state, ok := u.Relays[ch]
			if !ok {
				continue
			}
			cb(RelayEvent{
				Key:   hydrosync.ChannelKey{UnitID: u.UnitID, Channel: ch},
				State: hydrosync.RelayState{State: state, ObservedAt: at},
			})
		}
	case TypeSensorUpdate:
		var u sensorUpdate
		if err := json.Unmarshal(f.Data, &u); err != nil {
			return err
		}
		if u.UnitID == "" {
			return errNoUnit
		}
		m.mu.Lock()
		joined, cb := m.refs[u.UnitID] > 0, m.onSensor
		m.mu.Unlock()
		if joined && cb != nil {
			cb(SensorEvent{UnitID: u.UnitID, At: unixUTC(u.Timestamp)})
		}
	case TypeCameraImage, TypeRoomUpdate:
		m.mu.Lock()
		cb := m.onPassthrough
		m.mu.Unlock()
		if cb != nil {
			cb(f)
		}
	case TypeConnected, TypeJoined, TypeLeft:
		m.log.Debugw("push_ack", "type", f.Type, "data", string(f.Data))
	default:
		m.log.Debugw("push_frame_ignored", "type", f.Type)
	}
	return nil
}

func unixUTC(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
