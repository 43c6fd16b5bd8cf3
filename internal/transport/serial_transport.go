// internal/transport/serial_transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// serialPort is the subset of serial.Port the transport relies on
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

type portOpener func(name string, mode *serial.Mode) (serialPort, error)

func openSerialPort(name string, mode *serial.Mode) (serialPort, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialTransport implements Transport over a USB/UART serial port
type SerialTransport struct {
	config SerialConfig
	open   portOpener
	logger *zap.Logger

	mutex     sync.Mutex
	port      serialPort
	connected bool

	recvMutex sync.Mutex
	lines     lineBuffer
	scratch   []byte
	// stale is set when a Recv gave up; a reply may still be on its way
	stale bool
}

// NewSerialTransport creates a serial transport; the port is opened by Connect
func NewSerialTransport(config SerialConfig, logger *zap.Logger) *SerialTransport {
	config.applyDefaults()
	return &SerialTransport{
		config: config,
		open:   openSerialPort,
		logger: logger.With(
			zap.String("transport", string(KindSerial)),
			zap.String("port", config.Port),
		),
		scratch: make([]byte, 256),
	}
}

// Connect opens the port and waits out the board reset triggered by opening it
func (st *SerialTransport) Connect(ctx context.Context) error {
	st.mutex.Lock()
	if st.connected {
		st.mutex.Unlock()
		return nil
	}
	st.mutex.Unlock()

	st.logger.Info("Opening serial port", zap.Int("baud_rate", st.config.BaudRate))

	mode, err := st.mode()
	if err != nil {
		return err
	}

	port, err := st.open(st.config.Port, mode)
	if err != nil {
		st.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port %s: %w", st.config.Port, err)
	}

	if err := port.SetReadTimeout(st.config.PollInterval); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	// Opening the port toggles DTR which reboots the board; anything it
	// prints while booting is not a reply.
	if err := sleepCtx(ctx, st.config.ResetSettle); err != nil {
		port.Close()
		return fmt.Errorf("serial settle interrupted: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		st.logger.Warn("Failed to flush serial input buffer", zap.Error(err))
	}
	if err := port.ResetOutputBuffer(); err != nil {
		st.logger.Warn("Failed to flush serial output buffer", zap.Error(err))
	}
	st.logger.Debug("Serial buffers flushed")

	if err := sleepCtx(ctx, st.config.ReadySettle); err != nil {
		port.Close()
		return fmt.Errorf("serial settle interrupted: %w", err)
	}

	st.recvMutex.Lock()
	st.lines.reset()
	st.stale = false
	st.recvMutex.Unlock()

	st.mutex.Lock()
	st.port = port
	st.connected = true
	st.mutex.Unlock()

	st.logger.Info("Serial port opened successfully")
	return nil
}

// Disconnect closes the port
func (st *SerialTransport) Disconnect() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.port == nil {
		st.connected = false
		return nil
	}

	err := st.port.Close()
	st.port = nil
	st.connected = false
	if err != nil {
		st.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	st.logger.Info("Serial port closed")
	return nil
}

// Send writes line and a terminating newline
func (st *SerialTransport) Send(line string) error {
	port := st.current()
	if port == nil {
		st.logger.Warn("Send attempted while not connected")
		return ErrNotConnected
	}
	st.discardStale(port)

	data := append([]byte(line), '\n')
	for written := 0; written < len(data); {
		n, err := port.Write(data[written:])
		if err != nil {
			st.logger.Error("Serial write failed", zap.Error(err))
			st.markBroken(port)
			return fmt.Errorf("failed to write to serial port: %w", err)
		}
		written += n
	}

	st.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

// Recv waits up to timeout for the next line
func (st *SerialTransport) Recv(ctx context.Context, timeout time.Duration) (string, bool) {
	port := st.current()
	if port == nil {
		st.logger.Warn("Recv attempted while not connected")
		return "", false
	}

	st.recvMutex.Lock()
	defer st.recvMutex.Unlock()

	line, err := readLine(ctx, &st.lines, st.scratch, timeout, port.Read)
	if err != nil {
		switch {
		case errors.Is(err, errRecvTimeout):
			st.logger.Warn("Receive timeout", zap.Duration("timeout", timeout))
			st.stale = true
		case ctx.Err() != nil:
			st.logger.Debug("Receive cancelled", zap.Error(err))
			st.stale = true
		default:
			st.logger.Error("Serial read failed", zap.Error(err))
			st.markBroken(port)
		}
		return "", false
	}

	st.logger.Debug("Received line", zap.Int("bytes", len(line)))
	return line, true
}

// discardStale drops buffered bytes and the driver's input queue after an
// abandoned Recv, so a late reply is not taken for the next one
func (st *SerialTransport) discardStale(port serialPort) {
	st.recvMutex.Lock()
	defer st.recvMutex.Unlock()
	if !st.stale {
		return
	}
	st.stale = false

	st.lines.reset()
	if err := port.ResetInputBuffer(); err != nil {
		st.logger.Warn("Failed to flush serial input buffer", zap.Error(err))
	}
	st.logger.Debug("Discarded stale input")
}

// IsConnected reports whether the port is open
func (st *SerialTransport) IsConnected() bool {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.connected && st.port != nil
}

// Kind returns KindSerial
func (st *SerialTransport) Kind() Kind {
	return KindSerial
}

// Address returns the device path
func (st *SerialTransport) Address() string {
	return st.config.Port
}

func (st *SerialTransport) current() serialPort {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	if !st.connected {
		return nil
	}
	return st.port
}

// markBroken drops a port that failed mid-operation unless it was already
// replaced by a newer one
func (st *SerialTransport) markBroken(port serialPort) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	if st.port != port {
		return
	}
	st.port.Close()
	st.port = nil
	st.connected = false
}

func (st *SerialTransport) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: st.config.BaudRate,
		DataBits: st.config.DataBits,
	}

	switch st.config.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", st.config.StopBits)
	}

	switch st.config.Parity {
	case "none", "":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", st.config.Parity)
	}

	return mode, nil
}
