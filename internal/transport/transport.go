// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"time"
)

// Kind identifies the physical link behind a Transport
type Kind string

const (
	KindSerial Kind = "serial"
	KindSocket Kind = "socket"
)

var (
	// ErrNotConnected is returned by Send when no handle is open
	ErrNotConnected = errors.New("transport not connected")

	errRecvTimeout = errors.New("receive timeout")
)

// Transport moves newline-terminated text lines across a link.
//
// Implementations never panic on I/O faults: Send reports them as errors and
// Recv as a false second return value. At most one request may be in flight
// on a Transport at a time; the rpc client enforces this.
type Transport interface {
	// Connect opens the underlying handle
	Connect(ctx context.Context) error
	// Disconnect closes the handle. Safe to call when already closed.
	Disconnect() error
	// Send writes line followed by exactly one '\n'. Input left over from
	// a Recv that gave up is discarded first.
	Send(line string) error
	// Recv returns the next complete line, or false on timeout, link
	// failure, closed transport or ctx cancellation
	Recv(ctx context.Context, timeout time.Duration) (string, bool)
	// IsConnected reports handle liveness
	IsConnected() bool
	// Kind returns the link type
	Kind() Kind
	// Address returns a human readable endpoint (device path or host:port)
	Address() string
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
