package handlers

import (
	"net/http"

	"hydrosync/internal/client"

	"github.com/gin-gonic/gin"
)

const errNoACSchedule = "only the back room has an AC schedule"

// ACScheduleBody is the AC schedule payload: hour "00".."23" to °C.
type ACScheduleBody struct {
	ACSchedule client.ACSchedule `json:"ac_schedule" binding:"required"`
}

// @Summary      Room sensors
// @Description  Read-through of the backend room telemetry.
// @Tags         rooms
// @Produce      json
// @Param        room  path  string  true  "Room"  Enums(front,back)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/rooms/{room}/sensors [get]
func (h *Handler) getRoomSensors(c *gin.Context) {
	room := c.Param("room")
	raw, err := h.services.Rooms.RoomSensors(c.Request.Context(), room)
	if err != nil {
		h.respondError(c, "room_sensors_failed", err, "room", room)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// @Summary      Get AC schedule
// @Tags         rooms
// @Produce      json
// @Param        room  path  string  true  "Room"  Enums(back)
// @Success      200  {object}  ACScheduleBody
// @Failure      404  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/rooms/{room}/ac_schedule [get]
func (h *Handler) getACSchedule(c *gin.Context) {
	if c.Param("room") != client.RoomBack {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoACSchedule})
		return
	}
	sched, err := h.services.Rooms.ACSchedule(c.Request.Context())
	if err != nil {
		h.respondError(c, "ac_schedule_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, ACScheduleBody{ACSchedule: sched})
}

// @Summary      Update AC schedule
// @Description  Setpoints must be within 16..30 °C; hours are "00".."23".
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        room  path  string          true  "Room"  Enums(back)
// @Param        body  body  ACScheduleBody  true  "Hourly setpoints"
// @Success      200  {object}  ACScheduleBody
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/rooms/{room}/ac_schedule [put]
func (h *Handler) updateACSchedule(c *gin.Context) {
	if c.Param("room") != client.RoomBack {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoACSchedule})
		return
	}
	var body ACScheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	sched, err := h.services.Rooms.UpdateACSchedule(c.Request.Context(), body.ACSchedule)
	if err != nil {
		h.respondError(c, "ac_schedule_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, ACScheduleBody{ACSchedule: sched})
}
