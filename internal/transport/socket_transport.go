// internal/transport/socket_transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SocketTransport implements Transport over a TCP connection to the
// board's WiFi RPC server
type SocketTransport struct {
	config SocketConfig
	logger *zap.Logger

	mutex     sync.Mutex
	conn      net.Conn
	connected bool

	recvMutex sync.Mutex
	lines     lineBuffer
	scratch   []byte
	// stale is set when a Recv gave up; a reply may still be on its way
	stale bool
}

// NewSocketTransport creates a TCP transport; the connection is dialed by Connect
func NewSocketTransport(config SocketConfig, logger *zap.Logger) *SocketTransport {
	config.applyDefaults()
	return &SocketTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", string(KindSocket)),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
		scratch: make([]byte, config.BufferSize),
	}
}

// Connect dials the device with a bounded connect timeout
func (tt *SocketTransport) Connect(ctx context.Context) error {
	tt.mutex.Lock()
	if tt.connected {
		tt.mutex.Unlock()
		return nil
	}
	tt.mutex.Unlock()

	address := tt.Address()
	tt.logger.Info("Opening TCP connection", zap.String("address", address))

	dialer := &net.Dialer{Timeout: tt.config.ConnectTimeout}
	if tt.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	} else {
		dialer.KeepAlive = -1
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		tt.logger.Error("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	tt.recvMutex.Lock()
	tt.lines.reset()
	tt.stale = false
	tt.recvMutex.Unlock()

	tt.mutex.Lock()
	tt.conn = conn
	tt.connected = true
	tt.mutex.Unlock()

	tt.logger.Info("TCP connection opened successfully")
	return nil
}

// Disconnect closes the connection
func (tt *SocketTransport) Disconnect() error {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()

	if tt.conn == nil {
		tt.connected = false
		return nil
	}

	err := tt.conn.Close()
	tt.conn = nil
	tt.connected = false
	if err != nil {
		tt.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tt.logger.Info("TCP connection closed")
	return nil
}

// Send writes line and a terminating newline
func (tt *SocketTransport) Send(line string) error {
	conn := tt.current()
	if conn == nil {
		tt.logger.Warn("Send attempted while not connected")
		return ErrNotConnected
	}
	tt.discardStale(conn)

	data := append([]byte(line), '\n')
	// net.Conn.Write writes everything or returns an error
	if _, err := conn.Write(data); err != nil {
		tt.logger.Error("TCP write failed", zap.Error(err))
		tt.markBroken(conn)
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}

	tt.logger.Debug("TCP write completed", zap.Int("bytes", len(data)))
	return nil
}

// Recv waits up to timeout for the next line, reassembling it from however
// many segments TCP delivers
func (tt *SocketTransport) Recv(ctx context.Context, timeout time.Duration) (string, bool) {
	conn := tt.current()
	if conn == nil {
		tt.logger.Warn("Recv attempted while not connected")
		return "", false
	}

	tt.recvMutex.Lock()
	defer tt.recvMutex.Unlock()

	read := func(p []byte) (int, error) {
		if err := conn.SetReadDeadline(time.Now().Add(tt.config.PollInterval)); err != nil {
			return 0, err
		}
		n, err := conn.Read(p)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}
		return n, err
	}

	line, err := readLine(ctx, &tt.lines, tt.scratch, timeout, read)
	if err != nil {
		switch {
		case errors.Is(err, errRecvTimeout):
			tt.logger.Warn("Receive timeout", zap.Duration("timeout", timeout))
			tt.stale = true
		case ctx.Err() != nil:
			tt.logger.Debug("Receive cancelled", zap.Error(err))
			tt.stale = true
		default:
			tt.logger.Error("TCP read failed", zap.Error(err))
			tt.markBroken(conn)
		}
		return "", false
	}

	tt.logger.Debug("Received line", zap.Int("bytes", len(line)), zap.Int("buffered", tt.lines.buffered()))
	return line, true
}

// discardStale drops buffered bytes and whatever is readable right now after
// an abandoned Recv, so a late reply is not taken for the next one
func (tt *SocketTransport) discardStale(conn net.Conn) {
	tt.recvMutex.Lock()
	defer tt.recvMutex.Unlock()
	if !tt.stale {
		return
	}
	tt.stale = false

	discarded := tt.lines.buffered()
	tt.lines.reset()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(tt.config.PollInterval)); err != nil {
			break
		}
		n, err := conn.Read(tt.scratch)
		discarded += n
		if n == 0 || err != nil {
			break
		}
	}
	if discarded > 0 {
		tt.logger.Warn("Discarded stale input", zap.Int("bytes", discarded))
	}
}

// IsConnected reports whether the connection is open
func (tt *SocketTransport) IsConnected() bool {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()
	return tt.connected && tt.conn != nil
}

// Kind returns KindSocket
func (tt *SocketTransport) Kind() Kind {
	return KindSocket
}

// Address returns host:port
func (tt *SocketTransport) Address() string {
	return net.JoinHostPort(tt.config.Host, strconv.Itoa(tt.config.Port))
}

func (tt *SocketTransport) current() net.Conn {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()
	if !tt.connected {
		return nil
	}
	return tt.conn
}

// markBroken drops conn after a failed read or write unless it was already
// replaced by a newer connection
func (tt *SocketTransport) markBroken(conn net.Conn) {
	tt.mutex.Lock()
	defer tt.mutex.Unlock()
	if tt.conn != conn {
		return
	}
	tt.conn.Close()
	tt.conn = nil
	tt.connected = false
}
