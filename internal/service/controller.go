package service

import (
	"context"
	"fmt"

	"hydrosync"
)

// ControlModeController decides which write is legal for a channel:
// toggles in manual mode, schedule edits in timer mode. Mode switches are
// explicit. The checks run under the store lock at admission time.
type ControlModeController struct {
	queue *ActionQueue
}

func NewControlModeController(q *ActionQueue) *ControlModeController {
	return &ControlModeController{queue: q}
}

// Toggle switches the relay of a manual channel to desired.
func (c *ControlModeController) Toggle(ctx context.Context, key hydrosync.ChannelKey, desired hydrosync.Relay) (*Ticket, error) {
	return c.queue.Submit(ctx, key, hydrosync.ToggleOp(desired), requireMode(hydrosync.ModeManual, hydrosync.OpToggle))
}

// SwitchMode moves a channel between manual and timer.
func (c *ControlModeController) SwitchMode(ctx context.Context, key hydrosync.ChannelKey, mode hydrosync.ControlMode) (*Ticket, error) {
	return c.queue.Submit(ctx, key, hydrosync.ModeOp(mode), func(v hydrosync.ChannelView) error {
		if v.Mode == mode {
			return fmt.Errorf("%w: %s is already %s", hydrosync.ErrModeUnchanged, v.Key, mode)
		}
		return nil
	})
}

// EditSchedule replaces the window or cycle of a timer channel.
func (c *ControlModeController) EditSchedule(ctx context.Context, key hydrosync.ChannelKey, sched hydrosync.Schedule) (*Ticket, error) {
	return c.queue.Submit(ctx, key, hydrosync.ScheduleOp(sched), requireMode(hydrosync.ModeTimer, hydrosync.OpScheduleEdit))
}

func requireMode(want hydrosync.ControlMode, kind hydrosync.OperationKind) func(hydrosync.ChannelView) error {
	return func(v hydrosync.ChannelView) error {
		if v.Mode != want {
			current := v.Mode
			if current == "" {
				current = "unknown"
			}
			return fmt.Errorf("%w: %s on %s requires %s mode, channel is %s",
				hydrosync.ErrIllegalWriteInMode, kind, v.Key, want, current)
		}
		return nil
	}
}
