package hydrosync

import (
	"errors"
	"fmt"
)

// Client-side rejections. None of these ever reach the network.
var (
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrInvalidCycle       = errors.New("invalid pump cycle")
	ErrChannelBusy        = errors.New("channel is already updating")
	ErrIllegalWriteInMode = errors.New("write not allowed in current control mode")
	ErrChannelNotObserved = errors.New("channel has not been observed yet")
	ErrModeUnchanged      = errors.New("channel already in requested mode")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrInvalidRelay       = errors.New("invalid relay state: must be ON or OFF")
	ErrInvalidMode        = errors.New("invalid control mode: must be manual or timer")
)

var (
	// ErrRequestFailed matches every *RequestFailedError.
	ErrRequestFailed = errors.New("request failed")
	// ErrStaleConnection marks a dropped push channel; it is recovered internally.
	ErrStaleConnection = errors.New("push connection lost")
)

// RangeError reports a numeric field outside [Min, Max].
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s=%d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// FormatError reports a field that does not parse.
type FormatError struct {
	Field string
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s=%q is malformed", e.Field, e.Value)
}

// RequestFailedError wraps a network, timeout or server error on a backend call.
type RequestFailedError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRequestFailed) true for any RequestFailedError.
func (e *RequestFailedError) Is(target error) bool { return target == ErrRequestFailed }
