package hydrosync

import (
	"fmt"
	"strings"
	"time"
)

// ChannelID names one actuator channel of a growing unit.
type ChannelID string

const (
	Lights ChannelID = "lights"
	Fans   ChannelID = "fans"
	Pump   ChannelID = "pump"
)

// Channels is the fixed set of channels every unit exposes.
var Channels = []ChannelID{Lights, Fans, Pump}

// ParseChannel normalizes s and checks it is a known channel.
func ParseChannel(s string) (ChannelID, error) {
	ch := ChannelID(strings.ToLower(strings.TrimSpace(s)))
	switch ch {
	case Lights, Fans, Pump:
		return ch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// UsesCycle reports whether the channel is scheduled by a duty cycle
// instead of a daily on/off window.
func (c ChannelID) UsesCycle() bool { return c == Pump }

// Relay is the binary state of a relay.
type Relay string

const (
	RelayOn  Relay = "ON"
	RelayOff Relay = "OFF"
)

// ParseRelay accepts ON/OFF in any case.
func ParseRelay(s string) (Relay, error) {
	r := Relay(strings.ToUpper(strings.TrimSpace(s)))
	if r != RelayOn && r != RelayOff {
		return "", fmt.Errorf("%w: %q", ErrInvalidRelay, s)
	}
	return r, nil
}

// ControlMode decides whether a channel is driven by the operator or by its schedule.
type ControlMode string

const (
	ModeManual ControlMode = "manual"
	ModeTimer  ControlMode = "timer"
)

// ParseMode accepts manual/timer in any case.
func ParseMode(s string) (ControlMode, error) {
	m := ControlMode(strings.ToLower(strings.TrimSpace(s)))
	if m != ModeManual && m != ModeTimer {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// ChannelKey identifies a channel across units.
type ChannelKey struct {
	UnitID  string    `json:"unit_id"`
	Channel ChannelID `json:"channel"`
}

func (k ChannelKey) String() string { return k.UnitID + "/" + string(k.Channel) }

// RelayState is the last known relay position and when it was observed.
type RelayState struct {
	State      Relay     `json:"state"`
	ObservedAt time.Time `json:"observed_at"`
}

// TimeWindow is the daily on/off window for lights and fans ("HH:MM", 24h).
type TimeWindow struct {
	On  string `json:"on"`
	Off string `json:"off"`
}

// DutyCycle is the pump cycle: run OnDurationSec every IntervalSec.
type DutyCycle struct {
	OnDurationSec int `json:"on_duration_sec"`
	IntervalSec   int `json:"interval_sec"`
}

// Ratio is the fraction of time the pump runs.
func (d DutyCycle) Ratio() float64 {
	if d.IntervalSec <= 0 {
		return 0
	}
	return float64(d.OnDurationSec) / float64(d.IntervalSec)
}

// Schedule holds exactly one of Window or Cycle depending on the channel.
type Schedule struct {
	Window *TimeWindow `json:"window,omitempty"`
	Cycle  *DutyCycle  `json:"cycle,omitempty"`
}

// IsZero reports whether no schedule is set.
func (s Schedule) IsZero() bool { return s.Window == nil && s.Cycle == nil }

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	var out Schedule
	if s.Window != nil {
		w := *s.Window
		out.Window = &w
	}
	if s.Cycle != nil {
		c := *s.Cycle
		out.Cycle = &c
	}
	return out
}

// OperationKind is the shape of a write against a channel.
type OperationKind string

const (
	OpModeChange   OperationKind = "mode_change"
	OpToggle       OperationKind = "toggle"
	OpScheduleEdit OperationKind = "schedule_edit"
)

// Operation is an operator intent for a single channel.
type Operation struct {
	Kind     OperationKind `json:"kind"`
	Relay    Relay         `json:"relay,omitempty"`
	Mode     ControlMode   `json:"mode,omitempty"`
	Schedule *Schedule     `json:"schedule,omitempty"`
}

// ToggleOp builds a toggle to the desired relay state.
func ToggleOp(desired Relay) Operation { return Operation{Kind: OpToggle, Relay: desired} }

// ModeOp builds a mode switch.
func ModeOp(mode ControlMode) Operation { return Operation{Kind: OpModeChange, Mode: mode} }

// ScheduleOp builds a schedule edit.
func ScheduleOp(s Schedule) Operation {
	c := s.Clone()
	return Operation{Kind: OpScheduleEdit, Schedule: &c}
}

// OperationStatus tracks a pending write.
type OperationStatus string

const (
	StatusInFlight OperationStatus = "in_flight"
	StatusFailed   OperationStatus = "failed"
)

// PendingOperation is the single outstanding write of a channel.
type PendingOperation struct {
	ID       string          `json:"id"`
	Key      ChannelKey      `json:"key"`
	Op       Operation       `json:"op"`
	IssuedAt time.Time       `json:"issued_at"`
	Status   OperationStatus `json:"status"`
}

// FailedOperation is kept after a rollback so the presentation layer can flag it.
type FailedOperation struct {
	Op       PendingOperation `json:"op"`
	Error    string           `json:"error"`
	FailedAt time.Time        `json:"failed_at"`
}

// ChannelView is what the dashboard renders for one channel.
type ChannelView struct {
	Key         ChannelKey        `json:"key"`
	Relay       RelayState        `json:"relay"`
	Mode        ControlMode       `json:"mode,omitempty"`
	Schedule    Schedule          `json:"schedule"`
	Pending     *PendingOperation `json:"pending,omitempty"`
	Optimistic  bool              `json:"optimistic"`
	LastFailure *FailedOperation  `json:"last_failure,omitempty"`
}

// ConnectionState describes the push channel.
type ConnectionState struct {
	Connected   bool      `json:"connected"`
	LastEventAt time.Time `json:"last_event_at"`
}
