package client

import (
	"encoding/json"
	"time"

	"hydrosync"
)

// RelaySnapshot is the body of GET /units/{id}/relays and POST /units/{id}/relay.
type RelaySnapshot struct {
	UnitID    string                                  `json:"unit_id"`
	Timestamp int64                                   `json:"timestamp"`
	Relays    map[hydrosync.ChannelID]hydrosync.Relay `json:"relays"`
}

// ObservedAt converts the backend unix timestamp; zero stays zero.
func (r RelaySnapshot) ObservedAt() time.Time {
	return unixUTC(r.Timestamp)
}

// ScheduleDocument is the body of GET/POST /units/{id}/schedule.
type ScheduleDocument struct {
	Lights       *hydrosync.TimeWindow                        `json:"lights,omitempty"`
	Fans         *hydrosync.TimeWindow                        `json:"fans,omitempty"`
	PumpCycle    *hydrosync.DutyCycle                         `json:"pump_cycle,omitempty"`
	ControlModes map[hydrosync.ChannelID]hydrosync.ControlMode `json:"control_modes,omitempty"`
}

// ScheduleFor extracts the schedule of one channel.
func (d ScheduleDocument) ScheduleFor(ch hydrosync.ChannelID) hydrosync.Schedule {
	var s hydrosync.Schedule
	switch ch {
	case hydrosync.Lights:
		s.Window = d.Lights
	case hydrosync.Fans:
		s.Window = d.Fans
	case hydrosync.Pump:
		s.Cycle = d.PumpCycle
	}
	return s.Clone()
}

// SetSchedule replaces the schedule of one channel.
func (d *ScheduleDocument) SetSchedule(ch hydrosync.ChannelID, s hydrosync.Schedule) {
	s = s.Clone()
	switch ch {
	case hydrosync.Lights:
		d.Lights = s.Window
	case hydrosync.Fans:
		d.Fans = s.Window
	case hydrosync.Pump:
		d.PumpCycle = s.Cycle
	}
}

// ControlModeResponse is the body of POST /units/{id}/control_mode.
type ControlModeResponse struct {
	UnitID       string                                       `json:"unit_id"`
	Relay        hydrosync.ChannelID                          `json:"relay"`
	Mode         hydrosync.ControlMode                        `json:"mode"`
	ControlModes map[hydrosync.ChannelID]hydrosync.ControlMode `json:"control_modes"`
}

// Reservoir readings; nil means the sensor has not reported.
type Reservoir struct {
	PH         *float64 `json:"ph"`
	TDS        *float64 `json:"tds"`
	Turbidity  *float64 `json:"turbidity"`
	WaterTemp  *float64 `json:"water_temp"`
	WaterLevel *float64 `json:"water_level"`
}

// UnitSensors is the body of GET /units/{id}/sensors. Climate is passed
// through untouched for the dashboard.
type UnitSensors struct {
	UnitID    string          `json:"unit_id"`
	Timestamp *int64          `json:"timestamp"`
	Reservoir Reservoir       `json:"reservoir"`
	Climate   json.RawMessage `json:"climate,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// Room names accepted by the room endpoints.
const (
	RoomFront = "front"
	RoomBack  = "back"
)

// ACSchedule maps hour "00".."23" to a setpoint in °C.
type ACSchedule map[string]int

type acScheduleBody struct {
	ACSchedule ACSchedule `json:"ac_schedule"`
}

type relayModeBody struct {
	Relay hydrosync.ChannelID   `json:"relay"`
	Mode  hydrosync.ControlMode `json:"mode"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func unixUTC(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
