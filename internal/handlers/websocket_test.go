package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"hydrosync"
	"hydrosync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Type   string          `json:"type"`
	UnitID string          `json:"unit_id"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func dialUnit(t *testing.T, s *service.Service, unit string) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	r := gin.New()
	h := NewHandler(s, nil, nil)
	r.GET("/ws", h.wsConnect)
	srv := httptest.NewServer(r)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	q := u.Query()
	q.Set("unit", unit)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial error: %v", err)
	}
	return conn, srv
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_SnapshotThenUnitEvents(t *testing.T) {
	units := newMockUnits()
	units.channels["DWC1"] = []hydrosync.ChannelView{{Key: pumpKey, Relay: hydrosync.RelayState{State: hydrosync.RelayOff}, Mode: hydrosync.ModeManual}}
	units.connection = hydrosync.ConnectionState{Connected: true}
	s := &service.Service{Units: units}

	conn, srv := dialUnit(t, s, "DWC1")
	defer srv.Close()
	defer conn.Close()

	env := readEnvelope(t, conn)
	if env.Type != wsTypeSnapshot || env.UnitID != "DWC1" {
		t.Fatalf("bad envelope: %+v", env)
	}
	var snap wsSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Channels) != 1 || snap.Channels[0].Key != pumpKey || !snap.Connection.Connected {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if units.mountCount("DWC1") != 1 {
		t.Fatalf("unit not mounted: %d", units.mountCount("DWC1"))
	}

	// events of other units are filtered out, global ones pass
	other := hydrosync.ChannelView{Key: hydrosync.ChannelKey{UnitID: "AERO", Channel: hydrosync.Pump}}
	units.publish(service.Event{Type: service.EventChannel, UnitID: "AERO", Data: other})
	on := hydrosync.ChannelView{Key: pumpKey, Relay: hydrosync.RelayState{State: hydrosync.RelayOn}, Optimistic: true}
	units.publish(service.Event{Type: service.EventChannel, UnitID: "DWC1", Data: on})
	units.publish(service.Event{Type: service.EventConnection, Data: hydrosync.ConnectionState{Connected: false}})

	env = readEnvelope(t, conn)
	if env.Type != service.EventChannel || env.UnitID != "DWC1" {
		t.Fatalf("expected DWC1 channel event, got %+v", env)
	}
	var v hydrosync.ChannelView
	_ = json.Unmarshal(env.Data, &v)
	if v.Relay.State != hydrosync.RelayOn || !v.Optimistic {
		t.Fatalf("unexpected view: %+v", v)
	}

	env = readEnvelope(t, conn)
	if env.Type != service.EventConnection {
		t.Fatalf("expected connection event, got %+v", env)
	}
}

func TestWebSocket_EventsBeforeSnapshotAreSkipped(t *testing.T) {
	units := newMockUnits()
	on := hydrosync.ChannelView{Key: pumpKey, Relay: hydrosync.RelayState{State: hydrosync.RelayOn}, Mode: hydrosync.ModeManual}
	units.channels["DWC1"] = []hydrosync.ChannelView{on}
	units.onMount = func(unit string) {
		stale := hydrosync.ChannelView{Key: pumpKey, Relay: hydrosync.RelayState{State: hydrosync.RelayOff}}
		units.publish(service.Event{Type: service.EventChannel, UnitID: unit, Data: stale})
		units.publish(service.Event{Type: service.EventCamera, Data: map[string]string{"frame": "1"}})
	}

	conn, srv := dialUnit(t, &service.Service{Units: units}, "DWC1")
	defer srv.Close()
	defer conn.Close()

	if env := readEnvelope(t, conn); env.Type != wsTypeSnapshot {
		t.Fatalf("expected snapshot first, got %+v", env)
	}
	// passthrough frames are not part of the snapshot and still arrive
	if env := readEnvelope(t, conn); env.Type != service.EventCamera {
		t.Fatalf("expected camera frame, got %+v", env)
	}

	units.publish(service.Event{Type: service.EventConnection, Data: hydrosync.ConnectionState{Connected: true}})
	if env := readEnvelope(t, conn); env.Type != service.EventConnection {
		t.Fatalf("stale channel event delivered after snapshot: %+v", env)
	}
}

func TestWebSocket_CloseUnmounts(t *testing.T) {
	units := newMockUnits()
	conn, srv := dialUnit(t, &service.Service{Units: units}, "AERO")
	defer srv.Close()

	_ = readEnvelope(t, conn)
	if units.mountCount("AERO") != 1 || units.watcherCount() != 1 {
		t.Fatalf("mount=%d watchers=%d", units.mountCount("AERO"), units.watcherCount())
	}

	_ = conn.Close()
	waitFor(t, func() bool { return units.mountCount("AERO") == 0 && units.watcherCount() == 0 })
}

func TestWebSocket_MissingUnit(t *testing.T) {
	r := gin.New()
	h := NewHandler(&service.Service{Units: newMockUnits()}, nil, nil)
	r.GET("/ws", h.wsConnect)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without unit, got %d", w.Code)
	}
}

func TestWebSocket_MountErrorClosesWithError(t *testing.T) {
	units := newMockUnits()
	units.mountErr = errors.New("polling: scheduler closed")
	conn, srv := dialUnit(t, &service.Service{Units: units}, "DWC1")
	defer srv.Close()
	defer conn.Close()

	env := readEnvelope(t, conn)
	if env.Type != "error" || env.Error == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}

	// The server closes after reporting the mount failure
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err == nil {
		t.Fatalf("expected read error (closed), got message: %s", string(raw))
	}
	if units.watcherCount() != 0 {
		t.Fatalf("watch not cancelled after mount failure")
	}
}
