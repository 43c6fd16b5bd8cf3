// internal/rpc/result.go
package rpc

import "fmt"

// ResultCode is the device result taxonomy carried in every reply
type ResultCode int

const (
	OK ResultCode = iota
	InvalidCommand
	InvalidParams
	Timeout
	ExecutionError
	NotSupported
)

var resultMessages = map[ResultCode]string{
	OK:             "OK",
	InvalidCommand: "Invalid command",
	InvalidParams:  "Invalid parameters",
	Timeout:        "Timeout",
	ExecutionError: "Execution error",
	NotSupported:   "Not supported",
}

// String returns the canonical message for the code
func (c ResultCode) String() string {
	if msg, ok := resultMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code: %d", int(c))
}

// Known reports whether c belongs to the closed result set
func (c ResultCode) Known() bool {
	_, ok := resultMessages[c]
	return ok
}

// Messages synthesized on the client side; all of them carry Timeout
const (
	msgNotConnected    = "not connected"
	msgSendFailed      = "send failed"
	msgNoResponse      = "no response"
	msgInvalidResponse = "invalid response format"
)

// Status is the code/message pair every call site branches on
type Status struct {
	Code    ResultCode `json:"result"`
	Message string     `json:"message"`
}

// OK reports whether the device accepted the call
func (s Status) OK() bool {
	return s.Code == OK
}

// Err returns nil on OK and a *ResultError otherwise
func (s Status) Err() error {
	if s.Code == OK {
		return nil
	}
	return &ResultError{Code: s.Code, Message: s.Message}
}

func (s Status) String() string {
	return fmt.Sprintf("%d %s", int(s.Code), s.Message)
}

// ResultError is a non-OK Status as an error
type ResultError struct {
	Code    ResultCode
	Message string
}

// Sentinels for errors.Is; only the code is compared
var (
	ErrInvalidCommand = &ResultError{Code: InvalidCommand}
	ErrInvalidParams  = &ResultError{Code: InvalidParams}
	ErrTimeout        = &ResultError{Code: Timeout}
	ErrExecution      = &ResultError{Code: ExecutionError}
	ErrNotSupported   = &ResultError{Code: NotSupported}
)

func (e *ResultError) Error() string {
	if e.Message == "" || e.Message == e.Code.String() {
		return fmt.Sprintf("rpc result %d: %s", int(e.Code), e.Code)
	}
	return fmt.Sprintf("rpc result %d (%s): %s", int(e.Code), e.Code, e.Message)
}

// Is matches any *ResultError with the same code
func (e *ResultError) Is(target error) bool {
	t, ok := target.(*ResultError)
	return ok && t.Code == e.Code
}
