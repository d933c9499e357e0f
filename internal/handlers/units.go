package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"hydrosync"
	"hydrosync/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusPending      = "pending"
	statusAcknowledged = "acknowledged"

	errChannelNotFound = "channel has not been observed yet"
	errNoSensors       = "no sensor readings yet"
	errInvalidBodyPref = "invalid body: "
)

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, hydrosync.ErrInvalidSchedule),
		errors.Is(err, hydrosync.ErrInvalidCycle),
		errors.Is(err, hydrosync.ErrInvalidRelay),
		errors.Is(err, hydrosync.ErrInvalidMode),
		errors.Is(err, hydrosync.ErrUnknownChannel),
		errors.Is(err, service.ErrUnknownRoom),
		errors.Is(err, service.ErrInvalidTimeRange):
		return http.StatusBadRequest
	case errors.Is(err, hydrosync.ErrChannelBusy),
		errors.Is(err, hydrosync.ErrIllegalWriteInMode),
		errors.Is(err, hydrosync.ErrModeUnchanged):
		return http.StatusConflict
	case errors.Is(err, hydrosync.ErrChannelNotObserved):
		return http.StatusNotFound
	case errors.Is(err, hydrosync.ErrRequestFailed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrJournalDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Centralized error logging and response. Client errors are returned
// verbatim; only 5xx are logged.
func (h *Handler) respondError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && h.log != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// respondTicket answers a write. By default the write is reported as
// pending (202); with ?wait=true the handler blocks until it resolves.
func (h *Handler) respondTicket(c *gin.Context, key hydrosync.ChannelKey, t *service.Ticket) {
	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		c.JSON(http.StatusAccepted, gin.H{"status": statusPending, "pending": t.Pending})
		return
	}
	if err := t.Wait(c.Request.Context()); err != nil {
		h.respondError(c, "write_failed", err, "key", key.String(), "op_id", t.Pending.ID)
		return
	}
	resp := gin.H{"status": statusAcknowledged, "op_id": t.Pending.ID}
	if v, ok := h.services.Units.Channel(key); ok {
		resp["channel"] = v
	}
	c.JSON(http.StatusOK, resp)
}

// Request DTOs.
type toggleRequest struct {
	State string `json:"state" binding:"required"` // ON | OFF
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"` // manual | timer
}

// ScheduleRequest is the schedule edit payload. Lights and fans take on/off,
// the pump takes on_duration_sec/interval_sec.
type ScheduleRequest struct {
	On            string `json:"on,omitempty" example:"06:00"`
	Off           string `json:"off,omitempty" example:"18:00"`
	OnDurationSec *int   `json:"on_duration_sec,omitempty" example:"300"`
	IntervalSec   *int   `json:"interval_sec,omitempty" example:"3600"`
}

func (r ScheduleRequest) schedule(ch hydrosync.ChannelID) hydrosync.Schedule {
	if !ch.UsesCycle() {
		return hydrosync.Schedule{Window: &hydrosync.TimeWindow{On: r.On, Off: r.Off}}
	}
	var cyc hydrosync.DutyCycle
	if r.OnDurationSec != nil {
		cyc.OnDurationSec = *r.OnDurationSec
	}
	if r.IntervalSec != nil {
		cyc.IntervalSec = *r.IntervalSec
	}
	return hydrosync.Schedule{Cycle: &cyc}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Push connection state
// @Tags         system
// @Produce      json
// @Success      200  {object}  hydrosync.ConnectionState
// @Router       /api/v1/connection [get]
func (h *Handler) getConnection(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Units.Connection())
}

// @Summary      List channels of a unit
// @Tags         units
// @Produce      json
// @Param        unit  path  string  true  "Unit id"  example(DWC1)
// @Success      200  {object}  map[string]interface{}  "unit_id, channels"
// @Router       /api/v1/units/{unit}/channels [get]
func (h *Handler) getChannels(c *gin.Context) {
	id := unitID(c)
	c.JSON(http.StatusOK, gin.H{
		"unit_id":  id,
		"channels": h.services.Units.Channels(id),
	})
}

// @Summary      Get one channel
// @Tags         units
// @Produce      json
// @Param        unit     path  string  true  "Unit id"
// @Param        channel  path  string  true  "Channel"  Enums(lights,fans,pump)
// @Success      200  {object}  hydrosync.ChannelView
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/units/{unit}/channels/{channel} [get]
func (h *Handler) getChannel(c *gin.Context) {
	v, ok := h.services.Units.Channel(channelKey(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errChannelNotFound})
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary      Latest sensor readings of a unit
// @Tags         units
// @Produce      json
// @Param        unit  path  string  true  "Unit id"
// @Success      200  {object}  service.SensorSnapshot
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/units/{unit}/sensors [get]
func (h *Handler) getUnitSensors(c *gin.Context) {
	snap, ok := h.services.Units.UnitSensors(unitID(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoSensors})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Refresh a unit now
// @Description  Fetches relays, schedule and sensors from the backend and returns the merged channels.
// @Tags         units
// @Produce      json
// @Param        unit  path  string  true  "Unit id"
// @Success      200  {object}  map[string]interface{}  "unit_id, channels"
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/units/{unit}/refresh [post]
func (h *Handler) refreshUnit(c *gin.Context) {
	id := unitID(c)
	if err := h.services.Units.Refresh(c.Request.Context(), id); err != nil {
		h.respondError(c, "unit_refresh_failed", err, "unit_id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"unit_id":  id,
		"channels": h.services.Units.Channels(id),
	})
}

// @Summary      Toggle a relay
// @Description  Only legal in manual mode. Returns 202 with the pending write, or waits for the backend with wait=true.
// @Tags         units
// @Accept       json
// @Produce      json
// @Param        unit     path   string         true   "Unit id"
// @Param        channel  path   string         true   "Channel"  Enums(lights,fans,pump)
// @Param        wait     query  bool           false  "Block until acknowledged or rolled back"
// @Param        body     body   toggleRequest  true   "Desired state"
// @Success      200  {object}  map[string]interface{}
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/units/{unit}/channels/{channel}/toggle [post]
func (h *Handler) toggleChannel(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	relay, err := hydrosync.ParseRelay(req.State)
	if err != nil {
		h.respondError(c, "toggle_failed", err)
		return
	}
	key := channelKey(c)
	t, err := h.services.Controls.Toggle(c.Request.Context(), key, relay)
	if err != nil {
		h.respondError(c, "toggle_failed", err, "key", key.String())
		return
	}
	h.respondTicket(c, key, t)
}

// @Summary      Switch control mode
// @Tags         units
// @Accept       json
// @Produce      json
// @Param        unit     path   string       true   "Unit id"
// @Param        channel  path   string       true   "Channel"  Enums(lights,fans,pump)
// @Param        wait     query  bool         false  "Block until acknowledged or rolled back"
// @Param        body     body   modeRequest  true   "Mode"
// @Success      200  {object}  map[string]interface{}
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/units/{unit}/channels/{channel}/mode [post]
func (h *Handler) setChannelMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	mode, err := hydrosync.ParseMode(req.Mode)
	if err != nil {
		h.respondError(c, "mode_switch_failed", err)
		return
	}
	key := channelKey(c)
	t, err := h.services.Controls.SwitchMode(c.Request.Context(), key, mode)
	if err != nil {
		h.respondError(c, "mode_switch_failed", err, "key", key.String())
		return
	}
	h.respondTicket(c, key, t)
}

// @Summary      Edit schedule
// @Description  Only legal in timer mode. Lights and fans take on/off ("HH:MM"); the pump takes on_duration_sec (1..3600) and interval_sec (60..86400).
// @Tags         units
// @Accept       json
// @Produce      json
// @Param        unit     path   string           true   "Unit id"
// @Param        channel  path   string           true   "Channel"  Enums(lights,fans,pump)
// @Param        wait     query  bool             false  "Block until acknowledged or rolled back"
// @Param        body     body   ScheduleRequest  true   "Schedule"
// @Success      200  {object}  map[string]interface{}
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/units/{unit}/channels/{channel}/schedule [put]
func (h *Handler) editSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	key := channelKey(c)
	t, err := h.services.Controls.EditSchedule(c.Request.Context(), key, req.schedule(key.Channel))
	if err != nil {
		h.respondError(c, "schedule_edit_failed", err, "key", key.String())
		return
	}
	h.respondTicket(c, key, t)
}
