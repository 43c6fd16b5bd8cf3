// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-rpc/internal/config"
	"device-rpc/internal/discovery"
	"device-rpc/internal/handler"
	"device-rpc/internal/metrics"
	"device-rpc/internal/middleware"
	"device-rpc/internal/service"
	"device-rpc/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config        *config.Config
	logger        *zap.Logger
	deviceService *service.DeviceService
	discovery     *discovery.Manager
	websocket     *handler.WebSocketHandler
	metrics       *metrics.Metrics
}

// NewRouter creates a new router instance. m may be nil when metrics are
// disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	deviceService *service.DeviceService,
	discovery *discovery.Manager,
	websocket *handler.WebSocketHandler,
	m *metrics.Metrics,
) *Router {
	return &Router{
		config:        config,
		logger:        logger,
		deviceService: deviceService,
		discovery:     discovery,
		websocket:     websocket,
		metrics:       m,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.IsDebugEnabled() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	handler.NewHealthHandler(r.deviceService, r.config, r.websocket, r.logger).RegisterRoutes(router)

	if r.metrics != nil {
		router.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	apiV1 := router.Group("/api/v1")
	handler.NewDeviceHandler(r.deviceService, r.logger).RegisterRoutes(apiV1)
	handler.NewMotionHandler(r.deviceService, r.logger).RegisterRoutes(apiV1)
	handler.NewDiscoveryHandler(r.discovery, r.logger).RegisterRoutes(apiV1)

	if r.websocket != nil {
		r.websocket.RegisterRoutes(router.Group("/ws"))
	}

	r.logger.Info("All routes configured successfully")
}
