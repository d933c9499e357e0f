package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hydrosync"
	"hydrosync/internal/client"
	"hydrosync/internal/metrics"
	"hydrosync/internal/service"
	"hydrosync/internal/store"
)

var errUnexpected = errors.New("unexpected")

var pumpKey = hydrosync.ChannelKey{UnitID: "DWC1", Channel: hydrosync.Pump}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Buffer
	if body != "" {
		rdr = bytes.NewBufferString(body)
	} else {
		rdr = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New(func() int { return 3 })
	h := NewHandler(&service.Service{}, m.Handler(), nil)
	r := h.InitRoutes()

	w := doJSON(t, r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"ok"`)) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("hydrosync_pending_operations 3")) {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}

	// without a metrics handler the route is absent
	r = newTestRouter(&service.Service{})
	if w := doJSON(t, r, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", w.Code)
	}
}

func TestUnitHandlers_Reads(t *testing.T) {
	units := newMockUnits()
	units.channels["DWC1"] = []hydrosync.ChannelView{
		{Key: hydrosync.ChannelKey{UnitID: "DWC1", Channel: hydrosync.Lights}, Relay: hydrosync.RelayState{State: hydrosync.RelayOn}, Mode: hydrosync.ModeTimer},
		{Key: pumpKey, Relay: hydrosync.RelayState{State: hydrosync.RelayOff}, Mode: hydrosync.ModeManual},
	}
	ph := 6.2
	units.sensors["DWC1"] = service.SensorSnapshot{Sensors: client.UnitSensors{UnitID: "DWC1", Reservoir: client.Reservoir{PH: &ph}}}
	units.connection = hydrosync.ConnectionState{Connected: true}
	r := newTestRouter(&service.Service{Units: units})

	w := doJSON(t, r, http.MethodGet, "/api/v1/units/DWC1/channels", "")
	if w.Code != http.StatusOK {
		t.Fatalf("channels status=%d body=%s", w.Code, w.Body.String())
	}
	var list struct {
		UnitID   string                  `json:"unit_id"`
		Channels []hydrosync.ChannelView `json:"channels"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.UnitID != "DWC1" || len(list.Channels) != 2 || list.Channels[1].Key != pumpKey {
		t.Fatalf("unexpected channels: %+v", list)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/units/DWC1/channels/pump", "")
	if w.Code != http.StatusOK {
		t.Fatalf("channel status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/api/v1/units/DWC1/channels/fans", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unobserved channel: got %d; want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/units/DWC1/sensors", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"ph":6.2`)) {
		t.Fatalf("sensors: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, r, http.MethodGet, "/api/v1/units/AERO/sensors", ""); w.Code != http.StatusNotFound {
		t.Fatalf("sensors for unknown unit: got %d; want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/connection", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"connected":true`)) {
		t.Fatalf("connection: %d %s", w.Code, w.Body.String())
	}
}

func TestUnitHandlers_Refresh(t *testing.T) {
	units := newMockUnits()
	r := newTestRouter(&service.Service{Units: units})

	if w := doJSON(t, r, http.MethodPost, "/api/v1/units/DWC1/refresh", ""); w.Code != http.StatusOK {
		t.Fatalf("refresh status=%d", w.Code)
	}
	units.refreshErr = &hydrosync.RequestFailedError{Op: "get_relays", StatusCode: http.StatusServiceUnavailable, Err: errors.New("maintenance")}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/units/DWC1/refresh", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("failed refresh: got %d; want 502", w.Code)
	}
	if len(units.refreshed) != 2 || units.refreshed[0] != "DWC1" {
		t.Fatalf("refresh calls: %v", units.refreshed)
	}
}

func TestUnitHandlers_WritesReturnPending(t *testing.T) {
	pending := hydrosync.PendingOperation{ID: "op-1", Key: pumpKey, Status: hydrosync.StatusInFlight}
	ctl := &mockControls{ticket: &service.Ticket{Pending: pending}}
	r := newTestRouter(&service.Service{Controls: ctl, Units: newMockUnits()})

	w := doJSON(t, r, http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle", `{"state":"on"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("toggle status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Status  string                     `json:"status"`
		Pending hydrosync.PendingOperation `json:"pending"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusPending || resp.Pending.ID != "op-1" {
		t.Fatalf("unexpected toggle response: %+v", resp)
	}
	if ctl.lastKey != pumpKey || ctl.lastRelay != hydrosync.RelayOn {
		t.Fatalf("toggle args: %v %v", ctl.lastKey, ctl.lastRelay)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/units/DWC1/channels/fans/mode", `{"mode":"Timer"}`)
	if w.Code != http.StatusAccepted || ctl.lastMode != hydrosync.ModeTimer || ctl.lastKey.Channel != hydrosync.Fans {
		t.Fatalf("mode: %d %v", w.Code, ctl.lastMode)
	}

	w = doJSON(t, r, http.MethodPut, "/api/v1/units/DWC1/channels/pump/schedule", `{"on_duration_sec":300,"interval_sec":3600}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("pump schedule status=%d", w.Code)
	}
	if c := ctl.lastSchedule.Cycle; c == nil || c.OnDurationSec != 300 || c.IntervalSec != 3600 || ctl.lastSchedule.Window != nil {
		t.Fatalf("pump schedule args: %+v", ctl.lastSchedule)
	}

	w = doJSON(t, r, http.MethodPut, "/api/v1/units/DWC1/channels/lights/schedule", `{"on":"06:00","off":"18:00"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("lights schedule status=%d", w.Code)
	}
	if win := ctl.lastSchedule.Window; win == nil || win.On != "06:00" || win.Off != "18:00" || ctl.lastSchedule.Cycle != nil {
		t.Fatalf("lights schedule args: %+v", ctl.lastSchedule)
	}
}

func TestUnitHandlers_WriteErrors(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		err    error
		want   int
		calls  int
	}{
		{"missing body field", http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle", `{}`, nil, http.StatusBadRequest, 0},
		{"bad relay", http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle", `{"state":"HALF"}`, nil, http.StatusBadRequest, 0},
		{"bad mode", http.MethodPost, "/api/v1/units/DWC1/channels/pump/mode", `{"mode":"auto"}`, nil, http.StatusBadRequest, 0},
		{"unknown channel", http.MethodPost, "/api/v1/units/DWC1/channels/heater/toggle", `{"state":"ON"}`, nil, http.StatusBadRequest, 0},
		{"busy", http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle", `{"state":"ON"}`, hydrosync.ErrChannelBusy, http.StatusConflict, 1},
		{"illegal", http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle", `{"state":"ON"}`, hydrosync.ErrIllegalWriteInMode, http.StatusConflict, 1},
		{"unchanged", http.MethodPost, "/api/v1/units/DWC1/channels/pump/mode", `{"mode":"manual"}`, hydrosync.ErrModeUnchanged, http.StatusConflict, 1},
		{"not observed", http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle", `{"state":"ON"}`, hydrosync.ErrChannelNotObserved, http.StatusNotFound, 1},
		{"invalid cycle", http.MethodPut, "/api/v1/units/DWC1/channels/pump/schedule", `{"on_duration_sec":300,"interval_sec":30}`, hydrosync.ErrInvalidCycle, http.StatusBadRequest, 1},
		{"unexpected", http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle", `{"state":"ON"}`, errUnexpected, http.StatusInternalServerError, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl := &mockControls{err: tc.err}
			r := newTestRouter(&service.Service{Controls: ctl, Units: newMockUnits()})
			w := doJSON(t, r, tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Fatalf("status: got %d; want %d (body=%s)", w.Code, tc.want, w.Body.String())
			}
			if ctl.calls != tc.calls {
				t.Fatalf("controller calls: got %d; want %d", ctl.calls, tc.calls)
			}
		})
	}
}

// stubBackend implements service.Backend; only the methods a test sets are
// safe to call.
type stubBackend struct {
	service.Backend
	setRelay func(ctx context.Context, unitID string, ch hydrosync.ChannelID, state hydrosync.Relay) (client.RelaySnapshot, error)
}

func (b *stubBackend) SetRelay(ctx context.Context, unitID string, ch hydrosync.ChannelID, state hydrosync.Relay) (client.RelaySnapshot, error) {
	return b.setRelay(ctx, unitID, ch, state)
}

func newEngine(t *testing.T, b service.Backend) (*service.Service, *store.Store) {
	t.Helper()
	st := store.New()
	off, manual := hydrosync.RelayOff, hydrosync.ModeManual
	st.ApplyObserved(store.Observation{Key: pumpKey, Relay: &off, Mode: &manual, ObservedAt: time.Unix(1700000000, 0), Source: store.SourcePoll})
	syncer := service.NewSyncer(st, b, nil, nil, nil)
	t.Cleanup(syncer.Close)
	return service.NewService(service.Deps{Store: st, Backend: b, Syncer: syncer, RequestTimeout: time.Second}), st
}

func TestUnitHandlers_ToggleWaitAcknowledged(t *testing.T) {
	b := &stubBackend{setRelay: func(_ context.Context, unitID string, ch hydrosync.ChannelID, state hydrosync.Relay) (client.RelaySnapshot, error) {
		return client.RelaySnapshot{UnitID: unitID, Timestamp: 1700000005, Relays: map[hydrosync.ChannelID]hydrosync.Relay{ch: state}}, nil
	}}
	svc, _ := newEngine(t, b)
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle?wait=true", `{"state":"ON"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Status  string                `json:"status"`
		Channel hydrosync.ChannelView `json:"channel"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusAcknowledged || resp.Channel.Relay.State != hydrosync.RelayOn || resp.Channel.Optimistic {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// a toggle leaves the channel in manual, where schedule edits are illegal
	w = doJSON(t, r, http.MethodPut, "/api/v1/units/DWC1/channels/pump/schedule", `{"on_duration_sec":300,"interval_sec":3600}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("schedule edit in manual: got %d; want 409", w.Code)
	}
}

func TestUnitHandlers_ToggleWaitRolledBack(t *testing.T) {
	b := &stubBackend{setRelay: func(context.Context, string, hydrosync.ChannelID, hydrosync.Relay) (client.RelaySnapshot, error) {
		return client.RelaySnapshot{}, &hydrosync.RequestFailedError{Op: "set_relay", StatusCode: http.StatusInternalServerError, Err: errors.New("gpio fault")}
	}}
	svc, st := newEngine(t, b)
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/units/DWC1/channels/pump/toggle?wait=1", `{"state":"ON"}`)
	if w.Code != http.StatusBadGateway || !bytes.Contains(w.Body.Bytes(), []byte("gpio fault")) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	v, _ := st.Channel(pumpKey)
	if v.Relay.State != hydrosync.RelayOff || v.LastFailure == nil {
		t.Fatalf("expected rollback, got %+v", v)
	}
}
