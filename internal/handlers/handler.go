package handlers

import (
	"net/http"

	_ "hydrosync/docs"
	"hydrosync/internal/logger"
	"hydrosync/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	metrics  http.Handler
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies. metrics may be
// nil, in which case /metrics is not registered.
func NewHandler(services *service.Service, metrics http.Handler, log *logger.Logger) *Handler {
	return &Handler{services: services, metrics: metrics, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	h.registerAPIRoutes(router)

	// Live unit stream (HTTP upgrade), same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerUnitRoutes(api)
		h.registerRoomRoutes(api)
		h.registerLogRoutes(api)
		api.GET("/connection", h.getConnection)
	}
}

func (h *Handler) registerUnitRoutes(api *gin.RouterGroup) {
	units := api.Group("/units/:unit", h.unitMiddleware)
	{
		units.GET("/channels", h.getChannels)
		units.GET("/sensors", h.getUnitSensors)
		units.POST("/refresh", h.refreshUnit)

		channel := units.Group("/channels/:channel", h.channelMiddleware)
		{
			channel.GET("", h.getChannel)
			// Body example: {"state":"ON"}
			channel.POST("/toggle", h.toggleChannel)
			// Body example: {"mode":"timer"}
			channel.POST("/mode", h.setChannelMode)
			// Body example: {"on":"06:00","off":"18:00"} or {"on_duration_sec":300,"interval_sec":3600}
			channel.PUT("/schedule", h.editSchedule)
		}
	}
}

func (h *Handler) registerRoomRoutes(api *gin.RouterGroup) {
	rooms := api.Group("/rooms")
	{
		rooms.GET("/:room/sensors", h.getRoomSensors)
		// only the back room has an AC schedule
		rooms.GET("/:room/ac_schedule", h.getACSchedule)
		rooms.PUT("/:room/ac_schedule", h.updateACSchedule)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
