package service

import (
	"context"
	"errors"
	"testing"

	"hydrosync"
	"hydrosync/internal/client"
	"hydrosync/internal/store"
)

func newTestController(st *store.Store, b Backend) *ControlModeController {
	return NewControlModeController(newTestQueue(st, b, nil))
}

func TestController_ToggleRequiresManual(t *testing.T) {
	st := store.New()
	seed(t, st, pumpKey, hydrosync.RelayOff, hydrosync.ModeTimer, nil)
	b := &fakeBackend{}
	c := newTestController(st, b)

	_, err := c.Toggle(context.Background(), pumpKey, hydrosync.RelayOn)
	if !errors.Is(err, hydrosync.ErrIllegalWriteInMode) {
		t.Fatalf("got %v; want ErrIllegalWriteInMode", err)
	}
	if b.count("SetRelay") != 0 {
		t.Fatalf("backend called for illegal toggle")
	}
	if v := mustChannel(t, st, pumpKey); v.Pending != nil || v.Relay.State != hydrosync.RelayOff {
		t.Fatalf("store touched by illegal toggle: %+v", v)
	}
}

func TestController_ToggleWithUnknownModeIsIllegal(t *testing.T) {
	st := store.New()
	st.ApplyObserved(store.Observation{Key: pumpKey, Relay: relayPtr(hydrosync.RelayOff), ObservedAt: unixAt(0), Source: store.SourcePush})
	c := newTestController(st, &fakeBackend{})

	if _, err := c.Toggle(context.Background(), pumpKey, hydrosync.RelayOn); !errors.Is(err, hydrosync.ErrIllegalWriteInMode) {
		t.Fatalf("got %v; want ErrIllegalWriteInMode", err)
	}
}

func TestController_ScheduleEditRequiresTimer(t *testing.T) {
	st := store.New()
	seed(t, st, fansKey, hydrosync.RelayOff, hydrosync.ModeManual, &hydrosync.Schedule{Window: &hydrosync.TimeWindow{On: "08:00", Off: "20:00"}})
	b := &fakeBackend{}
	c := newTestController(st, b)

	_, err := c.EditSchedule(context.Background(), fansKey, hydrosync.Schedule{Window: &hydrosync.TimeWindow{On: "09:00", Off: "21:00"}})
	if !errors.Is(err, hydrosync.ErrIllegalWriteInMode) {
		t.Fatalf("got %v; want ErrIllegalWriteInMode", err)
	}
	if b.count("UpdateSchedule") != 0 {
		t.Fatalf("backend called for illegal edit")
	}
}

func TestController_InvalidScheduleBeatsModeCheck(t *testing.T) {
	st := store.New()
	seed(t, st, pumpKey, hydrosync.RelayOff, hydrosync.ModeManual, nil)
	c := newTestController(st, &fakeBackend{})

	_, err := c.EditSchedule(context.Background(), pumpKey, hydrosync.Schedule{Cycle: &hydrosync.DutyCycle{OnDurationSec: 0, IntervalSec: 3600}})
	if !errors.Is(err, hydrosync.ErrInvalidCycle) {
		t.Fatalf("got %v; want ErrInvalidCycle", err)
	}
}

func TestController_SwitchModeUnchanged(t *testing.T) {
	st := store.New()
	seed(t, st, pumpKey, hydrosync.RelayOff, hydrosync.ModeManual, nil)
	b := &fakeBackend{}
	c := newTestController(st, b)

	if _, err := c.SwitchMode(context.Background(), pumpKey, hydrosync.ModeManual); !errors.Is(err, hydrosync.ErrModeUnchanged) {
		t.Fatalf("got %v; want ErrModeUnchanged", err)
	}
	if b.count("SetControlMode") != 0 {
		t.Fatalf("backend called for unchanged mode")
	}
}

func TestController_SwitchModeAppliesControlModes(t *testing.T) {
	st := store.New()
	seed(t, st, lightsKey, hydrosync.RelayOn, hydrosync.ModeManual, nil)
	seed(t, st, pumpKey, hydrosync.RelayOff, hydrosync.ModeManual, nil)
	b := &fakeBackend{
		setControlMode: func(_ context.Context, unitID string, ch hydrosync.ChannelID, mode hydrosync.ControlMode) (client.ControlModeResponse, error) {
			return client.ControlModeResponse{
				UnitID: unitID,
				Relay:  ch,
				Mode:   mode,
				ControlModes: map[hydrosync.ChannelID]hydrosync.ControlMode{
					hydrosync.Lights: hydrosync.ModeTimer,
					hydrosync.Fans:   hydrosync.ModeManual,
					hydrosync.Pump:   mode,
				},
			}, nil
		},
	}
	c := newTestController(st, b)

	tk, err := c.SwitchMode(context.Background(), pumpKey, hydrosync.ModeTimer)
	if err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if v := mustChannel(t, st, pumpKey); v.Mode != hydrosync.ModeTimer || !v.Optimistic {
		t.Fatalf("expected optimistic timer, got %+v", v)
	}
	if err := waitTicket(t, tk); err != nil {
		t.Fatalf("ticket: %v", err)
	}

	if v := mustChannel(t, st, pumpKey); v.Mode != hydrosync.ModeTimer || v.Optimistic {
		t.Fatalf("pump mode not confirmed: %+v", v)
	}
	if v := mustChannel(t, st, lightsKey); v.Mode != hydrosync.ModeTimer {
		t.Fatalf("lights mode from control_modes not applied: %+v", v)
	}

	// now in timer, a toggle is illegal and a schedule edit is admitted
	if _, err := c.Toggle(context.Background(), pumpKey, hydrosync.RelayOn); !errors.Is(err, hydrosync.ErrIllegalWriteInMode) {
		t.Fatalf("toggle in timer: got %v", err)
	}
}

func TestController_SwitchModeFallsBackToSingleMode(t *testing.T) {
	st := store.New()
	seed(t, st, fansKey, hydrosync.RelayOff, hydrosync.ModeTimer, nil)
	b := &fakeBackend{
		setControlMode: func(_ context.Context, unitID string, ch hydrosync.ChannelID, mode hydrosync.ControlMode) (client.ControlModeResponse, error) {
			return client.ControlModeResponse{UnitID: unitID, Relay: ch, Mode: mode}, nil
		},
	}
	c := newTestController(st, b)

	tk, err := c.SwitchMode(context.Background(), fansKey, hydrosync.ModeManual)
	if err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := waitTicket(t, tk); err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if v := mustChannel(t, st, fansKey); v.Mode != hydrosync.ModeManual {
		t.Fatalf("fans mode: got %q", v.Mode)
	}
}

func TestController_NotObserved(t *testing.T) {
	c := newTestController(store.New(), &fakeBackend{})
	if _, err := c.Toggle(context.Background(), pumpKey, hydrosync.RelayOn); !errors.Is(err, hydrosync.ErrChannelNotObserved) {
		t.Fatalf("got %v; want ErrChannelNotObserved", err)
	}
}
