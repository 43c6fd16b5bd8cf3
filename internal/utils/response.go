// internal/utils/response.go
package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"device-rpc/internal/rpc"
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError represents error information
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	// Result is the device result code when the failure came from the device
	Result *int `json:"result,omitempty"`
}

// RPCResult is the body of a device call
type RPCResult struct {
	Result  rpc.ResultCode `json:"result"`
	Message string         `json:"message"`
	Data    any            `json:"data"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}
	if err != nil {
		apiError.Details = err.Error()
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// ValidationErrorResponse sends validation error response
func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Message: "Validation failed",
		Error: &APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
		},
		Data:      gin.H{"validation_errors": errors},
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// DeviceResponse sends the outcome of a device call. data is only included
// on OK.
func DeviceResponse(c *gin.Context, status rpc.Status, data any) {
	httpStatus := StatusForResult(status.Code)
	if status.OK() {
		SuccessResponse(c, httpStatus, status.Message, data)
		return
	}

	code := int(status.Code)
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: status.Message,
		Error: &APIError{
			Code:    resultErrorCode(status.Code),
			Message: status.Message,
			Result:  &code,
		},
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// StatusForResult maps a device result code to an HTTP status
func StatusForResult(code rpc.ResultCode) int {
	switch code {
	case rpc.OK:
		return http.StatusOK
	case rpc.InvalidCommand, rpc.InvalidParams:
		return http.StatusBadRequest
	case rpc.NotSupported:
		return http.StatusNotImplemented
	case rpc.ExecutionError:
		return http.StatusBadGateway
	case rpc.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func resultErrorCode(code rpc.ResultCode) string {
	switch code {
	case rpc.InvalidCommand:
		return "INVALID_COMMAND"
	case rpc.InvalidParams:
		return "INVALID_PARAMS"
	case rpc.Timeout:
		return "DEVICE_TIMEOUT"
	case rpc.ExecutionError:
		return "EXECUTION_ERROR"
	case rpc.NotSupported:
		return "NOT_SUPPORTED"
	default:
		return "UNKNOWN_RESULT"
	}
}

func getRequestID(c *gin.Context) string {
	if requestID, ok := c.Get(RequestIDKey); ok {
		if s, ok := requestID.(string); ok {
			return s
		}
	}
	return ""
}

func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusBadGateway:
		return "BAD_GATEWAY"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}
