package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-rpc/internal/rpc"
	"device-rpc/internal/tracker"
)

type request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// device is a TCP stand-in for the firmware
type device struct {
	mutex    sync.Mutex
	requests []request
	reply    func(request) string
}

func (d *device) received() []request {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]request(nil), d.requests...)
}

func startDevice(t *testing.T, reply func(request) string) (*device, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	d := &device{reply: reply}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go d.serve(conn)
		}
	}()
	return d, strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
}

func (d *device) serve(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		d.mutex.Lock()
		d.requests = append(d.requests, req)
		line := d.reply(req)
		d.mutex.Unlock()
		if line == "" {
			continue
		}
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return
		}
	}
}

func run(t *testing.T, port string, args ...string) (string, error) {
	t.Helper()
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--mode", "socket",
		"--host", "127.0.0.1",
		"--tcp-port", port,
		"--timeout", "500ms",
		"--log-level", "error",
	}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func ok(request) string { return `{"result":0}` }

func TestMethodsCommand(t *testing.T) {
	out, err := run(t, "1", "methods")
	require.NoError(t, err)
	assert.Contains(t, out, "generatePulsesAsync")
	assert.Contains(t, out, "oledWriteLine")
}

func TestCallCommand(t *testing.T) {
	d, port := startDevice(t, func(req request) string {
		if req.Method == rpc.MethodMillis {
			return `{"result":0,"data":{"millis":12345}}`
		}
		return `{"result":1}`
	})

	out, err := run(t, port, "call", "millis")
	require.NoError(t, err)
	assert.Contains(t, out, `"millis": 12345`)
	assert.Contains(t, out, `"result": 0`)

	_, err = run(t, port, "call", "bogus", `{"x":1}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, rpc.ErrInvalidCommand)

	reqs := d.received()
	require.Len(t, reqs, 2)
	assert.Equal(t, "bogus", reqs[1].Method)
	assert.Equal(t, map[string]any{"x": float64(1)}, reqs[1].Params)
}

func TestCallRejectsBadParams(t *testing.T) {
	d, port := startDevice(t, ok)

	_, err := run(t, port, "call", "digitalWrite", `[1]`)
	require.Error(t, err)
	assert.Empty(t, d.received())
}

func TestInfoCommand(t *testing.T) {
	_, port := startDevice(t, func(req request) string {
		switch req.Method {
		case rpc.MethodMillis:
			return `{"result":0,"data":{"millis":42}}`
		case rpc.MethodFreeMem:
			return `{"result":0,"data":{"free_heap":180000}}`
		default:
			return `{"result":0,"data":{"chip_id":171}}`
		}
	})

	out, err := run(t, port, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "42 ms")
	assert.Contains(t, out, "180000 bytes")
	assert.Contains(t, out, "0000000000AB")
}

func TestPinCommands(t *testing.T) {
	d, port := startDevice(t, func(req request) string {
		if req.Method == rpc.MethodDigitalRead {
			return `{"result":0,"data":{"value":1}}`
		}
		return `{"result":0}`
	})

	_, err := run(t, port, "pin", "mode", "2", "output")
	require.NoError(t, err)
	_, err = run(t, port, "pin", "write", "2", "1")
	require.NoError(t, err)
	out, err := run(t, port, "pin", "read", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "pin 4: 1")

	reqs := d.received()
	require.Len(t, reqs, 3)
	assert.Equal(t, request{Method: "pinMode", Params: map[string]any{"pin": float64(2), "mode": float64(1)}}, reqs[0])
	assert.Equal(t, request{Method: "digitalWrite", Params: map[string]any{"pin": float64(2), "value": float64(1)}}, reqs[1])

	_, err = run(t, port, "pin", "write", "2", "5")
	require.Error(t, err)
	assert.Len(t, d.received(), 3)
}

func TestPulseStartFollowsToCompletion(t *testing.T) {
	remaining := 5
	d, port := startDevice(t, func(req request) string {
		switch req.Method {
		case rpc.MethodGetRemainingPulses:
			remaining = max(remaining-2, 0)
			return `{"result":0,"data":{"remaining":` + strconv.Itoa(remaining) + `}}`
		case rpc.MethodIsPulsing:
			return `{"result":0,"data":{"pulsing":` + strconv.FormatBool(remaining > 0) + `}}`
		default:
			return `{"result":0}`
		}
	})

	out, err := run(t, port, "pulse", "start", "0", "25", "5", "--width", "1", "--pause", "1", "--interval", "5ms")
	require.NoError(t, err)
	assert.Contains(t, out, "5 pulses started on pin 25")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "channel 0: done")

	reqs := d.received()
	require.GreaterOrEqual(t, len(reqs), 2)
	assert.Equal(t, "pulseBegin", reqs[0].Method)
	assert.Equal(t, request{Method: "generatePulsesAsync", Params: map[string]any{
		"channel": float64(0), "pulse_width_ms": float64(1), "pause_width_ms": float64(1), "pulse_count": float64(5),
	}}, reqs[1])
}

// interruptingDevice cancels the follow context while a poll is on the wire
type interruptingDevice struct {
	cancel  context.CancelFunc
	stopped bool
}

func (d *interruptingDevice) PulseBegin(context.Context, int, int) rpc.Status {
	return rpc.Status{Code: rpc.OK, Message: "OK"}
}

func (d *interruptingDevice) GeneratePulsesAsync(context.Context, rpc.PulseTrain) rpc.Status {
	return rpc.Status{Code: rpc.OK, Message: "OK"}
}

func (d *interruptingDevice) GetRemainingPulses(context.Context, int) (int, rpc.Status) {
	d.cancel()
	return 0, rpc.Status{Code: rpc.Timeout, Message: "no response"}
}

func (d *interruptingDevice) IsPulsing(context.Context, int) (bool, rpc.Status) {
	return false, rpc.Status{Code: rpc.Timeout, Message: "no response"}
}

func (d *interruptingDevice) StopPulse(context.Context, int) rpc.Status {
	d.stopped = true
	return rpc.Status{Code: rpc.OK, Message: "OK"}
}

func TestFollowStopsTrainWhenInterruptedDuringPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dev := &interruptingDevice{cancel: cancel}

	tr := tracker.New(dev, nil)
	_, st := tr.Start(ctx, 0, 1, 1, 40)
	require.True(t, st.OK())

	var out bytes.Buffer
	err := follow(ctx, &out, tr, 0, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, dev.stopped)
	assert.Contains(t, out.String(), "interrupted: channel 0 stopped")

	ch, _ := tr.Get(0)
	assert.Equal(t, tracker.Stopped, ch.State)
}

func TestPulseStatusCommand(t *testing.T) {
	_, port := startDevice(t, func(req request) string {
		if req.Method == rpc.MethodGetRemainingPulses {
			return `{"result":0,"data":{"remaining":7}}`
		}
		return `{"result":0,"data":{"pulsing":true}}`
	})

	out, err := run(t, port, "pulse", "status", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "pulsing")
	assert.Contains(t, out, "7 remaining")
}

func TestParseHelpers(t *testing.T) {
	mode, err := parsePinMode("INPUT_PULLUP")
	require.NoError(t, err)
	assert.Equal(t, rpc.InputPullup, mode)
	_, err = parsePinMode("sideways")
	assert.Error(t, err)

	params, err := parseParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params)

	params, err = parseParams([]string{`{"ms":18446744073709551000}`})
	require.NoError(t, err)
	assert.Equal(t, json.Number("18446744073709551000"), params["ms"])

	_, err = parseParams([]string{`"text"`})
	assert.Error(t, err)
}
