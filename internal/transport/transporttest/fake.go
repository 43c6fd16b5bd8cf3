// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"device-rpc/internal/transport"
)

// Responder produces the reply lines for one sent line. Returning no lines
// simulates a silent device.
type Responder func(line string) []string

// Fake is an in-memory transport. Each Send feeds the Responder and queues
// its replies for Recv.
type Fake struct {
	Responder  Responder
	SendErr    error
	ConnectErr error

	mutex       sync.Mutex
	connected   bool
	sent        []string
	queue       []string
	connects    int
	recvs       int
	inFlight    int
	maxInFlight int
}

// NewFake returns a disconnected fake answering with r
func NewFake(r Responder) *Fake {
	return &Fake{Responder: r}
}

// Echo answers every request with {"result":0,"data":<params>}
func Echo(line string) []string {
	var req struct {
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return nil
	}
	if len(req.Params) == 0 {
		req.Params = json.RawMessage("{}")
	}
	return []string{`{"result":0,"data":` + string(req.Params) + `}`}
}

// Script answers the n-th sent line with replies[n]; once exhausted the
// device goes silent
func Script(replies ...string) Responder {
	var mutex sync.Mutex
	next := 0
	return func(string) []string {
		mutex.Lock()
		defer mutex.Unlock()
		if next >= len(replies) {
			return nil
		}
		r := replies[next]
		next++
		return []string{r}
	}
}

// Methods answers by request method name; unknown methods get no reply
func Methods(replies map[string]string) Responder {
	return func(line string) []string {
		var req struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return nil
		}
		if r, ok := replies[req.Method]; ok {
			return []string{r}
		}
		return nil
	}
}

func (f *Fake) Connect(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.connects++
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *Fake) Disconnect() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.connected = false
	f.queue = nil
	return nil
}

func (f *Fake) Send(line string) error {
	f.mutex.Lock()
	if !f.connected {
		f.mutex.Unlock()
		return transport.ErrNotConnected
	}
	if f.SendErr != nil {
		f.mutex.Unlock()
		return f.SendErr
	}
	f.sent = append(f.sent, line)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	responder := f.Responder
	f.mutex.Unlock()

	var replies []string
	if responder != nil {
		replies = responder(line)
	}

	f.mutex.Lock()
	f.queue = append(f.queue, replies...)
	f.mutex.Unlock()
	return nil
}

func (f *Fake) Recv(ctx context.Context, timeout time.Duration) (string, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.recvs++
	if f.inFlight > 0 {
		f.inFlight--
	}
	if !f.connected || len(f.queue) == 0 {
		return "", false
	}
	line := f.queue[0]
	f.queue = f.queue[1:]
	return line, true
}

func (f *Fake) IsConnected() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.connected
}

func (f *Fake) Kind() transport.Kind { return transport.KindSocket }

func (f *Fake) Address() string { return "fake:0" }

// Sent returns every line written so far
func (f *Fake) Sent() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// Recvs counts Recv calls
func (f *Fake) Recvs() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.recvs
}

// Connects counts Connect calls
func (f *Fake) Connects() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.connects
}

// MaxInFlight reports the highest number of sends awaiting a Recv
func (f *Fake) MaxInFlight() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.maxInFlight
}

// ErrLinkDown is a convenience error for SendErr
var ErrLinkDown = errors.New("link down")

var _ transport.Transport = (*Fake)(nil)
