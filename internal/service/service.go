package service

import (
	"context"
	"encoding/json"
	"time"

	"hydrosync"
	"hydrosync/internal/client"
	"hydrosync/internal/logger"
	"hydrosync/internal/metrics"
	"hydrosync/internal/models"
	"hydrosync/internal/repository"
	"hydrosync/internal/store"
)

// Backend is the subset of the REST client the services call.
type Backend interface {
	GetRelays(ctx context.Context, unitID string) (client.RelaySnapshot, error)
	SetRelay(ctx context.Context, unitID string, ch hydrosync.ChannelID, state hydrosync.Relay) (client.RelaySnapshot, error)
	GetSchedule(ctx context.Context, unitID string) (client.ScheduleDocument, error)
	UpdateSchedule(ctx context.Context, unitID string, doc client.ScheduleDocument) (client.ScheduleDocument, error)
	SetControlMode(ctx context.Context, unitID string, ch hydrosync.ChannelID, mode hydrosync.ControlMode) (client.ControlModeResponse, error)
	GetUnitSensors(ctx context.Context, unitID string) (client.UnitSensors, error)
	GetRoomSensors(ctx context.Context, room string) (json.RawMessage, error)
	GetACSchedule(ctx context.Context) (client.ACSchedule, error)
	UpdateACSchedule(ctx context.Context, sched client.ACSchedule) (client.ACSchedule, error)
}

// PushConn is the ref-counted unit subscription of the push connection.
type PushConn interface {
	Subscribe(unitID string)
	Unsubscribe(unitID string)
	State() hydrosync.ConnectionState
}

// Poller is the ref-counted per-unit refresh ticker.
type Poller interface {
	Start(unitID string) error
	Stop(unitID string)
	RefreshNow(ctx context.Context, unitID string) error
}

// Controls issues operator writes through the mode state machine.
type Controls interface {
	Toggle(ctx context.Context, key hydrosync.ChannelKey, desired hydrosync.Relay) (*Ticket, error)
	SwitchMode(ctx context.Context, key hydrosync.ChannelKey, mode hydrosync.ControlMode) (*Ticket, error)
	EditSchedule(ctx context.Context, key hydrosync.ChannelKey, sched hydrosync.Schedule) (*Ticket, error)
}

// Units exposes the read side of a unit and its mount lifecycle.
type Units interface {
	Mount(unitID string) (unmount func(), err error)
	Channels(unitID string) []hydrosync.ChannelView
	Channel(key hydrosync.ChannelKey) (hydrosync.ChannelView, bool)
	UnitSensors(unitID string) (SensorSnapshot, bool)
	Refresh(ctx context.Context, unitID string) error
	Connection() hydrosync.ConnectionState
	Watch(fn func(Event)) (cancel func())
}

// Rooms exposes room telemetry and the back room AC schedule.
type Rooms interface {
	RoomSensors(ctx context.Context, room string) (json.RawMessage, error)
	ACSchedule(ctx context.Context) (client.ACSchedule, error)
	UpdateACSchedule(ctx context.Context, sched client.ACSchedule) (client.ACSchedule, error)
}

// EventLog exposes the append-only control journal with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ControlEvent, error)
}

// Service aggregates all sub-services for the handlers.
type Service struct {
	Controls
	Units
	Rooms
	EventLog
}

// Deps are the long-lived components the services are built from.
type Deps struct {
	Store          *store.Store
	Backend        Backend
	Push           PushConn
	Poller         Poller
	Syncer         *Syncer
	Repos          *repository.Repository
	Metrics        *metrics.Metrics
	Log            *logger.Logger
	RequestTimeout time.Duration
}

// NewService wires the engine components into concrete services.
func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	var events repository.EventRepo
	if d.Repos != nil {
		events = d.Repos.EventRepo
	}
	j := newJournal(events, d.Log)

	queue := NewActionQueue(d.Store, d.Backend, d.RequestTimeout, j, d.Metrics, d.Log)
	return &Service{
		Controls: NewControlModeController(queue),
		Units:    NewUnitService(d.Store, d.Push, d.Poller, d.Syncer),
		Rooms:    NewRoomService(d.Backend),
		EventLog: NewEventLogService(events),
	}
}
