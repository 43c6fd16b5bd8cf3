package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// fakePort behaves like a serial driver with a read timeout: Read returns
// (0, nil) when nothing arrives within the timeout
type fakePort struct {
	mutex       sync.Mutex
	incoming    chan []byte
	written     bytes.Buffer
	readTimeout time.Duration
	flushedIn   int
	flushedOut  int
	closed      bool
	closedCh    chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{
		incoming: make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mutex.Lock()
	timeout := p.readTimeout
	p.mutex.Unlock()

	select {
	case <-p.closedCh:
		return 0, errors.New("port closed")
	case data := <-p.incoming:
		return copy(buf, data), nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	return p.written.Write(data)
}

func (p *fakePort) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.closed {
		p.closed = true
		close(p.closedCh)
	}
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.readTimeout = t
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.flushedIn++
	return nil
}

func (p *fakePort) ResetOutputBuffer() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.flushedOut++
	return nil
}

func newTestSerial(t *testing.T, port *fakePort) (*SerialTransport, *serial.Mode) {
	t.Helper()
	config := DefaultSerialConfig()
	config.Port = "/dev/ttyFAKE0"
	config.ResetSettle = 0
	config.ReadySettle = 0

	var opened serial.Mode
	tr := NewSerialTransport(config, zap.NewNop())
	tr.open = func(name string, mode *serial.Mode) (serialPort, error) {
		assert.Equal(t, "/dev/ttyFAKE0", name)
		opened = *mode
		return port, nil
	}
	return tr, &opened
}

func TestSerialTransportConnectFlushesAfterSettle(t *testing.T) {
	port := newFakePort()
	tr, mode := newTestSerial(t, port)

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	assert.True(t, tr.IsConnected())
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, 1, port.flushedIn)
	assert.Equal(t, 1, port.flushedOut)
	assert.Equal(t, 10*time.Millisecond, port.readTimeout)

	// connecting twice keeps the existing handle
	require.NoError(t, tr.Connect(context.Background()))
	assert.Equal(t, 1, port.flushedIn)
}

func TestSerialTransportSettleHonoursContext(t *testing.T) {
	port := newFakePort()
	tr, _ := newTestSerial(t, port)
	tr.config.ResetSettle = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, tr.IsConnected())
	assert.True(t, port.closed)
}

func TestSerialTransportOpenFailure(t *testing.T) {
	tr := NewSerialTransport(DefaultSerialConfig(), zap.NewNop())
	tr.open = func(string, *serial.Mode) (serialPort, error) {
		return nil, errors.New("no such device")
	}
	assert.Error(t, tr.Connect(context.Background()))
	assert.False(t, tr.IsConnected())
}

func TestSerialTransportRoundTrip(t *testing.T) {
	port := newFakePort()
	tr, _ := newTestSerial(t, port)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	require.NoError(t, tr.Send(`{"method":"chipID","params":{}}`))
	assert.Equal(t, "{\"method\":\"chipID\",\"params\":{}}\n", port.written.String())

	port.incoming <- []byte(`{"result":0,"data":`)
	port.incoming <- []byte("{\"chip_id\":42}}\r\n")

	line, ok := tr.Recv(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, `{"result":0,"data":{"chip_id":42}}`, line)
}

func TestSerialTransportRecvTimeout(t *testing.T) {
	port := newFakePort()
	tr, _ := newTestSerial(t, port)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	_, ok := tr.Recv(context.Background(), 40*time.Millisecond)
	assert.False(t, ok)
	assert.True(t, tr.IsConnected())
}

func TestSerialTransportDiscardsStaleInputAfterTimeout(t *testing.T) {
	port := newFakePort()
	tr, _ := newTestSerial(t, port)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	port.incoming <- []byte(`{"result":0,"data":{"mil`)
	_, ok := tr.Recv(context.Background(), 40*time.Millisecond)
	require.False(t, ok)

	require.NoError(t, tr.Send(`{"method":"millis","params":{}}`))
	assert.Equal(t, 2, port.flushedIn)

	port.incoming <- []byte("{\"result\":0,\"data\":{\"millis\":7}}\n")
	line, ok := tr.Recv(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, `{"result":0,"data":{"millis":7}}`, line)

	// a clean round trip leaves the driver queue alone
	require.NoError(t, tr.Send(`{"method":"millis","params":{}}`))
	assert.Equal(t, 2, port.flushedIn)
}

func TestSerialTransportDisconnect(t *testing.T) {
	port := newFakePort()
	tr, _ := newTestSerial(t, port)
	require.NoError(t, tr.Connect(context.Background()))

	assert.NoError(t, tr.Disconnect())
	assert.NoError(t, tr.Disconnect())
	assert.False(t, tr.IsConnected())
	assert.True(t, port.closed)

	assert.ErrorIs(t, tr.Send("x"), ErrNotConnected)
	_, ok := tr.Recv(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
}

func TestSerialTransportInvalidMode(t *testing.T) {
	config := DefaultSerialConfig()
	config.Parity = "mark"
	tr := NewSerialTransport(config, zap.NewNop())
	tr.open = func(string, *serial.Mode) (serialPort, error) {
		t.Fatal("port must not be opened with an invalid mode")
		return nil, nil
	}
	assert.Error(t, tr.Connect(context.Background()))
}
