// internal/rpc/client.go
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"device-rpc/internal/transport"
)

// DefaultTimeout bounds the wait for a single reply
const DefaultTimeout = 2 * time.Second

// Request is one JSON line sent to the device
type Request struct {
	Method string `json:"method"`
	Params Params `json:"params"`
}

// Response is one decoded reply
type Response struct {
	Code    ResultCode `json:"result"`
	Message string     `json:"message"`
	Data    Data       `json:"data"`
}

// Status drops the payload
func (r Response) Status() Status {
	return Status{Code: r.Code, Message: r.Message}
}

// Observer receives one notification per finished call
type Observer interface {
	ObserveCall(method string, code ResultCode, duration time.Duration)
}

// Options configures a Client
type Options struct {
	Timeout  time.Duration
	Logger   *zap.Logger
	Observer Observer
}

// Client turns method calls into single round trips over a Transport.
//
// The wire protocol carries no request id: a reply is matched to a request
// only by being the next line received. Call therefore holds a mutex across
// send and receive so there is never more than one request in flight.
type Client struct {
	transport transport.Transport
	timeout   time.Duration
	logger    *zap.Logger
	observer  Observer

	mutex sync.Mutex
}

// NewClient creates a client that exclusively owns t
func NewClient(t transport.Transport, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		transport: t,
		timeout:   opts.Timeout,
		logger:    opts.Logger.With(zap.String("component", "rpc-client")),
		observer:  opts.Observer,
	}
}

// Connect opens the transport
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to device",
		zap.String("transport", string(c.transport.Kind())),
		zap.String("address", c.transport.Address()),
	)
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to device: %w", err)
	}
	c.logger.Info("Connected to device")
	return nil
}

// Disconnect closes the transport
func (c *Client) Disconnect() error {
	c.logger.Info("Disconnecting from device")
	return c.transport.Disconnect()
}

// IsConnected reports transport liveness
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// Timeout returns the configured reply timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Call performs one round trip. It never returns an error value: link and
// framing failures are folded into Timeout, device failures keep the
// device's code and message.
func (c *Client) Call(ctx context.Context, method string, params Params) Response {
	start := time.Now()
	resp := c.roundTrip(ctx, method, params)
	if c.observer != nil {
		c.observer.ObserveCall(observedMethod(method), resp.Code, time.Since(start))
	}

	if resp.Code == OK {
		c.logger.Debug("Command successful", zap.String("method", method), zap.Any("data", map[string]any(resp.Data)))
	} else {
		c.logger.Warn("Command failed",
			zap.String("method", method),
			zap.Int("code", int(resp.Code)),
			zap.String("message", resp.Message),
		)
	}
	return resp
}

// OtherMethod labels calls to methods missing from the catalog
const OtherMethod = "other"

// observedMethod keeps observer labels bounded to the catalog
func observedMethod(method string) string {
	if _, ok := Lookup(method); ok {
		return method
	}
	return OtherMethod
}

// CallRaw calls a method that has no typed wrapper
func (c *Client) CallRaw(ctx context.Context, method string, params Params) Response {
	return c.Call(ctx, method, params)
}

// roundTrip returns early when ctx is done, but the exchange itself keeps
// the mutex until the device answers or the timeout expires. The late reply
// of an abandoned call is consumed there and never seen by the next caller.
func (c *Client) roundTrip(ctx context.Context, method string, params Params) Response {
	done := make(chan Response, 1)
	go func() {
		done <- c.exchange(ctx, method, params)
	}()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		return failure(Timeout, msgNoResponse)
	}
}

func (c *Client) exchange(ctx context.Context, method string, params Params) Response {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// abandoned while queued behind another call
	if ctx.Err() != nil {
		return failure(Timeout, msgNoResponse)
	}
	if !c.transport.IsConnected() {
		return failure(Timeout, msgNotConnected)
	}

	if params == nil {
		params = Params{}
	}
	line, err := json.Marshal(Request{Method: method, Params: params})
	if err != nil {
		c.logger.Error("Failed to encode request", zap.String("method", method), zap.Error(err))
		return failure(InvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	c.logger.Debug("Request", zap.ByteString("json", line))

	if err := c.transport.Send(string(line)); err != nil {
		return failure(Timeout, msgSendFailed)
	}

	reply, ok := c.transport.Recv(context.WithoutCancel(ctx), c.timeout)
	if !ok {
		return failure(Timeout, msgNoResponse)
	}
	if ctx.Err() != nil {
		c.logger.Debug("Discarded reply of abandoned call", zap.String("method", method), zap.String("json", reply))
		return failure(Timeout, msgNoResponse)
	}
	c.logger.Debug("Response", zap.String("json", reply))

	resp, err := decodeResponse(reply)
	if err != nil {
		c.logger.Error("Invalid response", zap.String("line", reply), zap.Error(err))
		return failure(Timeout, msgInvalidResponse)
	}
	return resp
}

func failure(code ResultCode, message string) Response {
	return Response{Code: code, Message: message, Data: Data{}}
}

// decodeResponse applies the reply defaults: missing result is Timeout,
// missing or empty message is the canonical text, missing data is empty
func decodeResponse(line string) (Response, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Response{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Response{}, fmt.Errorf("trailing data after reply object")
	}
	if raw == nil {
		return Response{}, fmt.Errorf("reply is not an object")
	}

	resp := Response{Code: Timeout, Data: Data{}}

	if v, ok := raw["result"]; ok {
		num, isNum := v.(json.Number)
		if !isNum {
			return Response{}, fmt.Errorf("result is %T, not a number", v)
		}
		code, err := num.Int64()
		if err != nil {
			return Response{}, fmt.Errorf("result is not an integer: %w", err)
		}
		resp.Code = ResultCode(code)
	}

	if msg, ok := raw["message"].(string); ok && msg != "" {
		resp.Message = msg
	} else {
		resp.Message = resp.Code.String()
	}

	switch data := raw["data"].(type) {
	case nil:
	case map[string]any:
		resp.Data = Data(data)
	default:
		return Response{}, fmt.Errorf("data is %T, not an object", data)
	}

	return resp, nil
}
