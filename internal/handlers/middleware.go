package handlers

import (
	"net/http"
	"strings"
	"time"

	"hydrosync"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by the path middlewares.
const (
	ctxUnitID  = "unitID"
	ctxChannel = "channel"
)

const maxUnitIDLen = 64

func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	if h.log == nil {
		return
	}
	h.log.Debugw("http_request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"latency", time.Since(start),
	)
}

func (h *Handler) unitMiddleware(c *gin.Context) {
	unitID := strings.TrimSpace(c.Param("unit"))
	if unitID == "" || len(unitID) > maxUnitIDLen {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "invalid unit id",
		})
		return
	}
	c.Set(ctxUnitID, unitID)
	c.Next()
}

func (h *Handler) channelMiddleware(c *gin.Context) {
	ch, err := hydrosync.ParseChannel(c.Param("channel"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}
	c.Set(ctxChannel, ch)
	c.Next()
}

func unitID(c *gin.Context) string {
	return c.GetString(ctxUnitID)
}

func channelKey(c *gin.Context) hydrosync.ChannelKey {
	ch, _ := c.Get(ctxChannel)
	id, _ := ch.(hydrosync.ChannelID)
	return hydrosync.ChannelKey{UnitID: unitID(c), Channel: id}
}
