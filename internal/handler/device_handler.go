// internal/handler/device_handler.go
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-rpc/internal/rpc"
	"device-rpc/internal/service"
	"device-rpc/internal/utils"
)

// DeviceHandler handles connection, raw call and pin level requests
type DeviceHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device-related routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	connection := router.Group("/connection")
	{
		connection.GET("", h.GetConnection)
		connection.POST("/connect", h.Connect)
		connection.POST("/disconnect", h.Disconnect)
	}

	router.GET("/methods", h.ListMethods)
	router.POST("/rpc/:method", h.CallMethod)
	router.GET("/system", h.GetSystemInfo)

	pins := router.Group("/pins/:pin")
	{
		pins.PUT("/mode", h.SetPinMode)
		pins.GET("/digital", h.DigitalRead)
		pins.PUT("/digital", h.DigitalWrite)
		pins.GET("/analog", h.AnalogRead)
	}

	pwm := router.Group("/pwm/:channel")
	{
		pwm.PUT("", h.SetupPWM)
		pwm.PUT("/duty", h.SetDuty)
	}
}

// PinModeRequest selects a pin mode by name
type PinModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=input output input_pullup"`
}

// DigitalWriteRequest carries the level to drive
type DigitalWriteRequest struct {
	Value *int `json:"value" binding:"required,min=0,max=1"`
}

// PWMSetupRequest configures an LEDC channel
type PWMSetupRequest struct {
	Frequency  int `json:"frequency" binding:"required,min=1"`
	Resolution int `json:"resolution" binding:"required,min=1,max=20"`
}

// PWMDutyRequest sets an LEDC channel duty
type PWMDutyRequest struct {
	Duty *int `json:"duty" binding:"required,min=0"`
}

var pinModes = map[string]rpc.PinModeValue{
	"input":        rpc.Input,
	"output":       rpc.Output,
	"input_pullup": rpc.InputPullup,
}

// GetConnection reports the transport and session state
func (h *DeviceHandler) GetConnection(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Connection status retrieved", h.deviceService.Status())
}

// Connect opens the device session
func (h *DeviceHandler) Connect(c *gin.Context) {
	if err := h.deviceService.Connect(c.Request.Context()); err != nil {
		h.logger.Error("Failed to connect device", zap.Error(err))
		utils.ErrorResponse(c, http.StatusBadGateway, "Failed to connect device", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device connected", h.deviceService.Status())
}

// Disconnect closes the device session
func (h *DeviceHandler) Disconnect(c *gin.Context) {
	if err := h.deviceService.Disconnect(); err != nil {
		h.logger.Error("Failed to disconnect device", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to disconnect device", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device disconnected", h.deviceService.Status())
}

// ListMethods returns the known firmware method table
func (h *DeviceHandler) ListMethods(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Methods retrieved", rpc.Catalog())
}

// CallMethod sends the request body as params of one raw device call. An
// empty body means no params.
func (h *DeviceHandler) CallMethod(c *gin.Context) {
	method := c.Param("method")

	var params rpc.Params
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Params must be a JSON object", err)
		return
	}

	resp := h.deviceService.Client().CallRaw(c.Request.Context(), method, params)
	if !resp.Status().OK() {
		h.logger.Warn("Raw call failed",
			zap.String("method", method),
			zap.Int("result", int(resp.Code)),
			zap.String("message", resp.Message),
		)
	}

	data := resp.Data
	if data == nil {
		data = rpc.Data{}
	}
	c.JSON(utils.StatusForResult(resp.Code), utils.RPCResult{
		Result:  resp.Code,
		Message: resp.Message,
		Data:    data,
	})
}

// GetSystemInfo reads millis, free heap and chip id
func (h *DeviceHandler) GetSystemInfo(c *gin.Context) {
	info, status := h.deviceService.Info(c.Request.Context())
	utils.DeviceResponse(c, status, info)
}

// SetPinMode configures a GPIO direction
func (h *DeviceHandler) SetPinMode(c *gin.Context) {
	pin, ok := intParam(c, "pin")
	if !ok {
		return
	}
	var req PinModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	mode := pinModes[strings.ToLower(req.Mode)]
	status := h.deviceService.Client().PinMode(c.Request.Context(), pin, mode)
	utils.DeviceResponse(c, status, gin.H{"pin": pin, "mode": req.Mode})
}

// DigitalRead samples a GPIO level
func (h *DeviceHandler) DigitalRead(c *gin.Context) {
	pin, ok := intParam(c, "pin")
	if !ok {
		return
	}
	value, status := h.deviceService.Client().DigitalRead(c.Request.Context(), pin)
	utils.DeviceResponse(c, status, gin.H{"pin": pin, "value": value})
}

// DigitalWrite drives a GPIO level
func (h *DeviceHandler) DigitalWrite(c *gin.Context) {
	pin, ok := intParam(c, "pin")
	if !ok {
		return
	}
	var req DigitalWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := h.deviceService.Client().DigitalWrite(c.Request.Context(), pin, *req.Value)
	utils.DeviceResponse(c, status, gin.H{"pin": pin, "value": *req.Value})
}

// AnalogRead samples an ADC pin
func (h *DeviceHandler) AnalogRead(c *gin.Context) {
	pin, ok := intParam(c, "pin")
	if !ok {
		return
	}
	value, status := h.deviceService.Client().AnalogRead(c.Request.Context(), pin)
	utils.DeviceResponse(c, status, gin.H{"pin": pin, "value": value})
}

// SetupPWM configures frequency and resolution of an LEDC channel
func (h *DeviceHandler) SetupPWM(c *gin.Context) {
	channel, ok := intParam(c, "channel")
	if !ok {
		return
	}
	var req PWMSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := h.deviceService.Client().LedcSetup(c.Request.Context(), channel, req.Frequency, req.Resolution)
	utils.DeviceResponse(c, status, gin.H{
		"channel":    channel,
		"frequency":  req.Frequency,
		"resolution": req.Resolution,
	})
}

// SetDuty writes an LEDC duty value
func (h *DeviceHandler) SetDuty(c *gin.Context) {
	channel, ok := intParam(c, "channel")
	if !ok {
		return
	}
	var req PWMDutyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := h.deviceService.Client().LedcWrite(c.Request.Context(), channel, *req.Duty)
	utils.DeviceResponse(c, status, gin.H{"channel": channel, "duty": *req.Duty})
}

// intParam parses a non-negative path parameter, answering 400 on failure
func intParam(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil || value < 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name), err)
		return 0, false
	}
	return value, true
}
