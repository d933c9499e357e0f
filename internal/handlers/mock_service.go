package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"hydrosync"
	"hydrosync/internal/client"
	"hydrosync/internal/models"
	"hydrosync/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockControls struct {
	ticket *service.Ticket
	err    error

	lastKey      hydrosync.ChannelKey
	lastRelay    hydrosync.Relay
	lastMode     hydrosync.ControlMode
	lastSchedule hydrosync.Schedule
	calls        int
}

func (m *mockControls) Toggle(ctx context.Context, key hydrosync.ChannelKey, desired hydrosync.Relay) (*service.Ticket, error) {
	m.calls++
	m.lastKey = key
	m.lastRelay = desired
	return m.ticket, m.err
}
func (m *mockControls) SwitchMode(ctx context.Context, key hydrosync.ChannelKey, mode hydrosync.ControlMode) (*service.Ticket, error) {
	m.calls++
	m.lastKey = key
	m.lastMode = mode
	return m.ticket, m.err
}
func (m *mockControls) EditSchedule(ctx context.Context, key hydrosync.ChannelKey, sched hydrosync.Schedule) (*service.Ticket, error) {
	m.calls++
	m.lastKey = key
	m.lastSchedule = sched
	return m.ticket, m.err
}

type mockUnits struct {
	mu sync.Mutex

	channels   map[string][]hydrosync.ChannelView
	sensors    map[string]service.SensorSnapshot
	connection hydrosync.ConnectionState
	refreshErr error
	mountErr   error
	onMount    func(unitID string)

	mounted   map[string]int
	refreshed []string
	watchers  map[int]func(service.Event)
	nextWatch int
}

func newMockUnits() *mockUnits {
	return &mockUnits{
		channels: make(map[string][]hydrosync.ChannelView),
		sensors:  make(map[string]service.SensorSnapshot),
		mounted:  make(map[string]int),
		watchers: make(map[int]func(service.Event)),
	}
}

func (m *mockUnits) Mount(unitID string) (func(), error) {
	m.mu.Lock()
	if m.mountErr != nil {
		m.mu.Unlock()
		return nil, m.mountErr
	}
	m.mounted[unitID]++
	hook := m.onMount
	m.mu.Unlock()
	if hook != nil {
		hook(unitID)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.mounted[unitID]--
			m.mu.Unlock()
		})
	}, nil
}
func (m *mockUnits) Channels(unitID string) []hydrosync.ChannelView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[unitID]
}
func (m *mockUnits) Channel(key hydrosync.ChannelKey) (hydrosync.ChannelView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.channels[key.UnitID] {
		if v.Key == key {
			return v, true
		}
	}
	return hydrosync.ChannelView{}, false
}
func (m *mockUnits) UnitSensors(unitID string) (service.SensorSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sensors[unitID]
	return s, ok
}
func (m *mockUnits) Refresh(ctx context.Context, unitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = append(m.refreshed, unitID)
	return m.refreshErr
}
func (m *mockUnits) Connection() hydrosync.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connection
}
func (m *mockUnits) Watch(fn func(service.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// publish delivers e to every watcher, like the syncer does.
func (m *mockUnits) publish(e service.Event) {
	m.mu.Lock()
	fns := make([]func(service.Event), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (m *mockUnits) mountCount(unitID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted[unitID]
}

func (m *mockUnits) watcherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

type mockRooms struct {
	sensors    json.RawMessage
	sensorsErr error
	ac         client.ACSchedule
	acErr      error
	lastRoom   string
	lastAC     client.ACSchedule
}

func (m *mockRooms) RoomSensors(ctx context.Context, room string) (json.RawMessage, error) {
	m.lastRoom = room
	return m.sensors, m.sensorsErr
}
func (m *mockRooms) ACSchedule(ctx context.Context) (client.ACSchedule, error) {
	return m.ac, m.acErr
}
func (m *mockRooms) UpdateACSchedule(ctx context.Context, sched client.ACSchedule) (client.ACSchedule, error) {
	m.lastAC = sched
	return sched, m.acErr
}

type mockEventLog struct {
	resp     []models.ControlEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
	lastUnit string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ControlEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastUnit = f.UnitID
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
