// internal/handler/discovery_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-rpc/internal/discovery"
	"device-rpc/internal/utils"
)

// DiscoveryHandler handles port discovery requests
type DiscoveryHandler struct {
	manager *discovery.Manager
	logger  *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(manager *discovery.Manager, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		manager: manager,
		logger:  utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discoveryGroup := router.Group("/discovery")
	{
		discoveryGroup.GET("/ports", h.ScanPorts)
		discoveryGroup.GET("/scanners", h.ListScanners)
	}
}

// ScanPorts lists candidate device addresses. The optional type query
// parameter restricts the scan to one scanner.
func (h *DiscoveryHandler) ScanPorts(c *gin.Context) {
	scanType := c.DefaultQuery("type", "all")

	var (
		candidates []discovery.Candidate
		err        error
	)
	if scanType == "all" {
		candidates = h.manager.ScanAll(c.Request.Context())
	} else {
		candidates, err = h.manager.ScanByType(c.Request.Context(), scanType)
	}
	if err != nil {
		if errors.Is(err, discovery.ErrUnknownScanner) {
			utils.ErrorResponse(c, http.StatusNotFound, "Unknown scanner type", err)
			return
		}
		h.logger.Error("Failed to scan ports", zap.String("type", scanType), zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan ports", err)
		return
	}
	if candidates == nil {
		candidates = []discovery.Candidate{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"ports_found": len(candidates),
		"ports":       candidates,
	})
}

// ListScanners returns the registered scanner types
func (h *DiscoveryHandler) ListScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", h.manager.Types())
}
