package transport

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startDevice listens on loopback and hands the accepted connection to serve
func startDevice(t *testing.T, serve func(conn net.Conn)) SocketConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serve(conn)
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	config := DefaultSocketConfig()
	config.Host = host
	config.Port = portNum
	return config
}

func TestSocketTransportReassemblesSegments(t *testing.T) {
	done := make(chan struct{})
	config := startDevice(t, func(conn net.Conn) {
		defer conn.Close()
		for _, part := range []string{`{"result":0,`, `"data":{"value"`, `:1}}`, "\n{\"result\":2}\n"} {
			conn.Write([]byte(part))
			time.Sleep(20 * time.Millisecond)
		}
		<-done
	})

	tr := NewSocketTransport(config, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	line, ok := tr.Recv(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, `{"result":0,"data":{"value":1}}`, line)

	// peer goes away; the already buffered line is still delivered
	close(done)
	line, ok = tr.Recv(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, `{"result":2}`, line)

	_, ok = tr.Recv(context.Background(), time.Second)
	assert.False(t, ok)
	assert.False(t, tr.IsConnected(), "EOF marks the link down")
}

func TestSocketTransportSendAppendsNewline(t *testing.T) {
	received := make(chan string, 1)
	config := startDevice(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 128)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	})

	tr := NewSocketTransport(config, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	require.NoError(t, tr.Send(`{"method":"millis","params":{}}`))
	select {
	case got := <-received:
		assert.Equal(t, "{\"method\":\"millis\",\"params\":{}}\n", got)
	case <-time.After(2 * time.Second):
		t.Fatal("device did not receive the request")
	}
}

func TestSocketTransportRecvTimeoutKeepsLink(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	config := startDevice(t, func(conn net.Conn) {
		defer conn.Close()
		<-hold
	})

	tr := NewSocketTransport(config, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	start := time.Now()
	_, ok := tr.Recv(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, tr.IsConnected())
}

func TestSocketTransportDiscardsLateReplyAfterTimeout(t *testing.T) {
	config := startDevice(t, func(conn net.Conn) {
		defer conn.Close()
		reader := bufio.NewReader(conn)

		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
		time.Sleep(80 * time.Millisecond)
		conn.Write([]byte("{\"result\":0,\"data\":{\"millis\":1}}\n"))

		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
		conn.Write([]byte("{\"result\":0,\"data\":{\"millis\":2}}\n"))
		reader.ReadString('\n')
	})

	tr := NewSocketTransport(config, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	require.NoError(t, tr.Send(`{"method":"millis","params":{}}`))
	_, ok := tr.Recv(context.Background(), 30*time.Millisecond)
	require.False(t, ok)

	// the first reply lands after the caller gave up
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, tr.Send(`{"method":"millis","params":{}}`))
	line, ok := tr.Recv(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, `{"result":0,"data":{"millis":2}}`, line)
}

func TestSocketTransportDisconnectUnblocksRecv(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	config := startDevice(t, func(conn net.Conn) {
		defer conn.Close()
		<-hold
	})

	tr := NewSocketTransport(config, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))

	result := make(chan bool, 1)
	go func() {
		_, ok := tr.Recv(context.Background(), 10*time.Second)
		result <- ok
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, tr.Disconnect())

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv kept blocking after Disconnect")
	}
}

func TestSocketTransportDisconnectIsIdempotent(t *testing.T) {
	config := startDevice(t, func(conn net.Conn) { conn.Close() })

	tr := NewSocketTransport(config, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))

	assert.NoError(t, tr.Disconnect())
	assert.NoError(t, tr.Disconnect())
	assert.False(t, tr.IsConnected())
}

func TestSocketTransportNotConnected(t *testing.T) {
	tr := NewSocketTransport(DefaultSocketConfig(), zap.NewNop())

	assert.ErrorIs(t, tr.Send("x"), ErrNotConnected)
	_, ok := tr.Recv(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
	assert.False(t, tr.IsConnected())
	assert.NoError(t, tr.Disconnect())
}

func TestSocketTransportConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	config := DefaultSocketConfig()
	config.Host = "127.0.0.1"
	config.Port = addr.Port
	config.ConnectTimeout = 200 * time.Millisecond

	tr := NewSocketTransport(config, zap.NewNop())
	assert.Error(t, tr.Connect(context.Background()))
	assert.False(t, tr.IsConnected())
	assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(addr.Port)), tr.Address())
}
