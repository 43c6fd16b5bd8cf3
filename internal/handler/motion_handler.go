// internal/handler/motion_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"device-rpc/internal/motion"
	"device-rpc/internal/rpc"
	"device-rpc/internal/service"
	"device-rpc/internal/utils"
)

// MotionHandler exposes the step/dir axes
type MotionHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewMotionHandler creates a new motion handler
func NewMotionHandler(deviceService *service.DeviceService, logger *zap.Logger) *MotionHandler {
	return &MotionHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "motion-handler"),
	}
}

// RegisterRoutes registers motion routes
func (h *MotionHandler) RegisterRoutes(router *gin.RouterGroup) {
	motionGroup := router.Group("/motion")
	{
		motionGroup.GET("/axes", h.ListAxes)
		motionGroup.GET("/axes/:axis", h.GetAxis)
		motionGroup.POST("/axes/:axis/move", h.Move)
		motionGroup.POST("/axes/:axis/stop", h.Stop)
		motionGroup.POST("/estop", h.EmergencyStop)
	}
}

// MoveRequest carries either an absolute target or a relative delta
type MoveRequest struct {
	Target *decimal.Decimal `json:"target"`
	Delta  *decimal.Decimal `json:"delta"`
}

// ListAxes returns every configured axis
func (h *MotionHandler) ListAxes(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Axes retrieved", h.deviceService.Motion().Axes())
}

// GetAxis returns one axis
func (h *MotionHandler) GetAxis(c *gin.Context) {
	axis, err := h.deviceService.Motion().Axis(c.Param("axis"))
	if err != nil {
		h.motionError(c, "Failed to get axis", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Axis retrieved", axis)
}

// Move starts a move to an absolute target or by a relative delta
func (h *MotionHandler) Move(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if (req.Target == nil) == (req.Delta == nil) {
		utils.ValidationErrorResponse(c, map[string]string{
			"target": "exactly one of target or delta is required",
		})
		return
	}

	controller := h.deviceService.Motion()
	var (
		move motion.Move
		err  error
	)
	if req.Target != nil {
		move, err = controller.MoveAbsolute(c.Request.Context(), c.Param("axis"), *req.Target)
	} else {
		move, err = controller.MoveRelative(c.Request.Context(), c.Param("axis"), *req.Delta)
	}
	if err != nil {
		h.motionError(c, "Failed to start move", err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Move started", move)
}

// Stop halts one axis
func (h *MotionHandler) Stop(c *gin.Context) {
	axis, err := h.deviceService.Motion().Stop(c.Request.Context(), c.Param("axis"))
	if err != nil {
		h.motionError(c, "Failed to stop axis", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Axis stopped", axis)
}

// EmergencyStop halts every axis
func (h *MotionHandler) EmergencyStop(c *gin.Context) {
	controller := h.deviceService.Motion()
	if err := controller.EmergencyStop(c.Request.Context()); err != nil {
		h.motionError(c, "Emergency stop incomplete", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "All axes stopped", controller.Axes())
}

func (h *MotionHandler) motionError(c *gin.Context, message string, err error) {
	status := motionStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err), zap.String("axis", c.Param("axis")))
	}
	utils.ErrorResponse(c, status, message, err)
}

// motionStatus maps controller errors to HTTP statuses
func motionStatus(err error) int {
	var resultErr *rpc.ResultError
	switch {
	case errors.Is(err, motion.ErrUnknownAxis):
		return http.StatusNotFound
	case errors.Is(err, motion.ErrAxisMoving):
		return http.StatusConflict
	case errors.Is(err, motion.ErrOutOfRange),
		errors.Is(err, motion.ErrNoMotion),
		errors.Is(err, motion.ErrTooSmall):
		return http.StatusBadRequest
	case errors.As(err, &resultErr):
		return utils.StatusForResult(resultErr.Code)
	default:
		return http.StatusConflict
	}
}
