// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-rpc/internal/config"
	"device-rpc/internal/service"
	"device-rpc/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	deviceService *service.DeviceService
	config        *config.Config
	websocket     *WebSocketHandler
	startedAt     time.Time
	logger        *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler. websocket may be nil.
func NewHealthHandler(deviceService *service.DeviceService, config *config.Config, websocket *WebSocketHandler, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		deviceService: deviceService,
		config:        config,
		websocket:     websocket,
		startedAt:     time.Now(),
		logger:        utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports service and device link state. A disconnected
// device degrades the service but does not make it unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := h.deviceService.Status()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	if status.Connected {
		health.Checks["device"] = CheckResult{
			Status:  "healthy",
			Message: "Device link OK",
			Data: map[string]any{
				"mode":    status.Mode,
				"address": status.Address,
			},
		}
	} else {
		health.Status = "degraded"
		health.Checks["device"] = CheckResult{
			Status:  "unhealthy",
			Message: "Device not connected",
			Data: map[string]any{
				"mode":    status.Mode,
				"address": status.Address,
			},
		}
	}

	health.Checks["motion"] = CheckResult{
		Status: "healthy",
		Data:   map[string]any{"axes": status.Axes},
	}

	if h.websocket != nil {
		health.Checks["websocket"] = CheckResult{
			Status: "healthy",
			Data:   map[string]any{"clients": h.websocket.GetConnectionStats().TotalConnections},
		}
	}

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck succeeds only while the device link is open
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.deviceService.Status().Connected {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "device not connected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck succeeds whenever the process can respond
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
