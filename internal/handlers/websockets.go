package handlers

import (
	"net/http"
	"strings"
	"time"

	"hydrosync"
	"hydrosync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxMsgSize  = 1 << 12 // 4 KB
	eventBuffer = 64
)

// Envelope types written to dashboard sockets besides service event types.
const (
	wsTypeSnapshot = "snapshot"
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type   string      `json:"type"`
	UnitID string      `json:"unit_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type wsSnapshot struct {
	Channels   []hydrosync.ChannelView   `json:"channels"`
	Connection hydrosync.ConnectionState `json:"connection"`
	Sensors    *service.SensorSnapshot   `json:"sensors,omitempty"`
}

// Upgrader for HTTP -> WebSocket. The daemon serves a local dashboard.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConnect mounts ?unit= for the lifetime of the socket and streams its
// channel and sensor events plus global connection and passthrough events.
func (h *Handler) wsConnect(c *gin.Context) {
	unit := strings.TrimSpace(c.Query("unit"))
	if unit == "" || len(unit) > maxUnitIDLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'unit' is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Subscribe before the snapshot so no change falls between the two.
	events := make(chan service.Event, eventBuffer)
	cancelWatch := h.services.Units.Watch(func(e service.Event) {
		if e.UnitID != "" && e.UnitID != unit {
			return
		}
		select {
		case events <- e:
		default:
			if h.log != nil {
				h.log.Warnw("ws_event_dropped", "unit_id", unit, "type", e.Type)
			}
		}
	})
	defer cancelWatch()

	unmount, err := h.services.Units.Mount(unit)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_mount_failed", "unit_id", unit, "err", err)
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(wsEnvelope{Type: "error", UnitID: unit, Error: err.Error()})
		return
	}
	defer unmount()
	if h.log != nil {
		h.log.Infow("ws_unit_mounted", "unit_id", unit)
	}

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// Events queued before the snapshot is read are older than it.
	queued := len(events)
	if err := h.sendSnapshot(conn, unit); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}
	for _, e := range skipCovered(events, queued) {
		if err := writeEvent(conn, e); err != nil {
			if h.log != nil {
				h.log.Infow("ws_write_failed", "err", err)
			}
			return
		}
	}

	// Writer/select loop.
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case e := <-events:
			if err := writeEvent(conn, e); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// Helper: startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// Helper: sendSnapshot writes the current unit state with a write deadline.
func (h *Handler) sendSnapshot(conn *websocket.Conn, unit string) error {
	snap := wsSnapshot{
		Channels:   h.services.Units.Channels(unit),
		Connection: h.services.Units.Connection(),
	}
	if s, ok := h.services.Units.UnitSensors(unit); ok {
		snap.Sensors = &s
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: wsTypeSnapshot, UnitID: unit, Data: snap})
}

// skipCovered takes the first n queued events and keeps only those the
// snapshot does not already reflect.
func skipCovered(events <-chan service.Event, n int) []service.Event {
	var keep []service.Event
	for i := 0; i < n; i++ {
		e := <-events
		switch e.Type {
		case service.EventChannel, service.EventSensors, service.EventConnection:
			continue
		}
		keep = append(keep, e)
	}
	return keep
}

func writeEvent(conn *websocket.Conn, e service.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: e.Type, UnitID: e.UnitID, Data: e.Data})
}
