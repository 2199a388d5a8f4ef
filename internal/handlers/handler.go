package handlers

import (
	"kodibridge/internal/logger"
	"kodibridge/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services, status push and logging.
type Handler struct {
	services *service.Service
	hub      *StatusHub
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies. The hub is the
// fan-out the device manager's status sink publishes into; a nil hub is
// replaced by an empty one that nothing publishes to.
func NewHandler(services *service.Service, hub *StatusHub, log *logger.Logger) *Handler {
	if hub == nil {
		hub = NewStatusHub()
	}
	return &Handler{services: services, hub: hub, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Per-device status stream (HTTP upgrade) on the same port
	router.GET("/ws/:id", h.wsDeviceStatus)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware)
	{
		h.registerDeviceRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.GET("/", h.listDevices)
		devices.PUT("/", h.saveDevice)
		devices.GET("/:id", h.getDevice)
		devices.DELETE("/:id", h.deleteDevice)

		// Body example: {"command":"cursor_up","repeat":3,"delay_ms":100}
		devices.POST("/:id/commands", h.invokeCommand)
		devices.POST("/:id/sequence", h.invokeSequence)
		devices.GET("/:id/status", h.deviceStatus)
		devices.POST("/:id/wake", h.wakeDevice)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
