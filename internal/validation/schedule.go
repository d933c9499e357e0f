// Package validation holds the pure checks applied to schedule edits before
// they are admitted as pending writes.
package validation

import (
	"fmt"
	"strings"

	"hydrosync"
)

// Duty cycle and AC bounds.
const (
	MinOnDurationSec = 1
	MaxOnDurationSec = 3600
	MinIntervalSec   = 60
	MaxIntervalSec   = 86400

	MinACTempC = 16
	MaxACTempC = 30
)

// Field names used in RangeError/FormatError.
const (
	FieldOn            = "on"
	FieldOff           = "off"
	FieldOnDurationSec = "on_duration_sec"
	FieldIntervalSec   = "interval_sec"
)

// ValidateWindow checks both ends of a time window are valid 24h "HH:MM".
// An identical on/off is accepted; the backend treats it as an empty window.
func ValidateWindow(on, off string) error {
	if _, err := ParseClock(on); err != nil {
		return fmt.Errorf("%w: %w", hydrosync.ErrInvalidSchedule, &hydrosync.FormatError{Field: FieldOn, Value: on})
	}
	if _, err := ParseClock(off); err != nil {
		return fmt.Errorf("%w: %w", hydrosync.ErrInvalidSchedule, &hydrosync.FormatError{Field: FieldOff, Value: off})
	}
	return nil
}

// ValidateCycle checks pump cycle bounds. OnDurationSec >= IntervalSec is allowed.
func ValidateCycle(onDurationSec, intervalSec int) error {
	if onDurationSec < MinOnDurationSec || onDurationSec > MaxOnDurationSec {
		return fmt.Errorf("%w: %w", hydrosync.ErrInvalidCycle, &hydrosync.RangeError{
			Field: FieldOnDurationSec, Value: onDurationSec, Min: MinOnDurationSec, Max: MaxOnDurationSec,
		})
	}
	if intervalSec < MinIntervalSec || intervalSec > MaxIntervalSec {
		return fmt.Errorf("%w: %w", hydrosync.ErrInvalidCycle, &hydrosync.RangeError{
			Field: FieldIntervalSec, Value: intervalSec, Min: MinIntervalSec, Max: MaxIntervalSec,
		})
	}
	return nil
}

// ValidateSchedule dispatches on the channel: pump takes a cycle, lights and
// fans take a window. Supplying the wrong shape is a schedule error.
func ValidateSchedule(ch hydrosync.ChannelID, s hydrosync.Schedule) error {
	if ch.UsesCycle() {
		if s.Cycle == nil || s.Window != nil {
			return fmt.Errorf("%w: %s requires on_duration_sec and interval_sec", hydrosync.ErrInvalidCycle, ch)
		}
		return ValidateCycle(s.Cycle.OnDurationSec, s.Cycle.IntervalSec)
	}
	if s.Window == nil || s.Cycle != nil {
		return fmt.Errorf("%w: %s requires on and off times", hydrosync.ErrInvalidSchedule, ch)
	}
	return ValidateWindow(s.Window.On, s.Window.Off)
}

// ValidateACSchedule checks an hourly AC setpoint table: keys "00".."23",
// values within [MinACTempC, MaxACTempC]. Partial tables are allowed.
func ValidateACSchedule(sched map[string]int) error {
	for hour, temp := range sched {
		if !validHourKey(hour) {
			return fmt.Errorf("%w: %w", hydrosync.ErrInvalidSchedule, &hydrosync.FormatError{Field: "ac_schedule", Value: hour})
		}
		if temp < MinACTempC || temp > MaxACTempC {
			return fmt.Errorf("%w: %w", hydrosync.ErrInvalidSchedule, &hydrosync.RangeError{
				Field: "ac_schedule[" + hour + "]", Value: temp, Min: MinACTempC, Max: MaxACTempC,
			})
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, ok := twoDigits(hh)
	if !ok || h > 23 {
		return 0, fmt.Errorf("clock %q: bad hour", s)
	}
	m, ok := twoDigits(mm)
	if !ok || m > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", s)
	}
	return h*60 + m, nil
}

func validHourKey(k string) bool {
	h, ok := twoDigits(k)
	return ok && h <= 23
}

// twoDigits parses exactly two ASCII digits; signs and spaces are rejected.
func twoDigits(s string) (int, bool) {
	if len(s) != 2 || !isDigit(s[0]) || !isDigit(s[1]) {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
