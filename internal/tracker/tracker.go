// Package tracker follows device-side pulse trains started with
// generatePulsesAsync. The host drives progress by calling Poll; the
// tracker never spawns timers of its own.
package tracker

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"device-rpc/internal/rpc"
)

// State of one channel
type State int

const (
	Idle State = iota
	Active
	Completed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PulseDevice is the slice of the rpc surface the tracker needs
type PulseDevice interface {
	PulseBegin(ctx context.Context, channel, pin int) rpc.Status
	GeneratePulsesAsync(ctx context.Context, train rpc.PulseTrain) rpc.Status
	GetRemainingPulses(ctx context.Context, channel int) (int, rpc.Status)
	IsPulsing(ctx context.Context, channel int) (bool, rpc.Status)
	StopPulse(ctx context.Context, channel int) rpc.Status
}

// Channel is a snapshot of one tracked channel
type Channel struct {
	ID             int   `json:"id"`
	Configured     bool  `json:"configured"`
	Pin            int   `json:"pin"`
	TotalUnits     int   `json:"total"`
	RemainingUnits int   `json:"remaining"`
	Active         bool  `json:"active"`
	State          State `json:"state"`
}

// Progress is the completed fraction in [0,1]; a channel with no work is
// complete
func (c Channel) Progress() float64 {
	if c.TotalUnits <= 0 {
		return 1.0
	}
	p := 1 - float64(c.RemainingUnits)/float64(c.TotalUnits)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Update is the result of one Poll
type Update struct {
	Channel  Channel
	Progress float64
	// Finished is true only for the poll that observed completion
	Finished bool
}

// Observer is told how many channels are active after every transition
type Observer interface {
	ActiveChannels(n int)
}

// Tracker keeps per-channel bookkeeping for asynchronous pulse trains
type Tracker struct {
	device   PulseDevice
	logger   *zap.Logger
	observer Observer

	mutex    sync.Mutex
	channels map[int]*Channel
}

// New creates a tracker bound to device
func New(device PulseDevice, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		device:   device,
		logger:   logger.With(zap.String("component", "tracker")),
		channels: make(map[int]*Channel),
	}
}

// SetObserver installs o; call before the tracker is shared
func (t *Tracker) SetObserver(o Observer) {
	t.observer = o
}

// channel returns the record for id, creating an Idle one. Caller holds mutex.
func (t *Tracker) channel(id int) *Channel {
	ch, ok := t.channels[id]
	if !ok {
		ch = &Channel{ID: id, State: Idle}
		t.channels[id] = ch
	}
	return ch
}

func (t *Tracker) reportActive() {
	if t.observer == nil {
		return
	}
	n := 0
	for _, ch := range t.channels {
		if ch.State == Active {
			n++
		}
	}
	t.observer.ActiveChannels(n)
}

// Begin binds channel to pin on the device
func (t *Tracker) Begin(ctx context.Context, channel, pin int) rpc.Status {
	st := t.device.PulseBegin(ctx, channel, pin)
	if !st.OK() {
		t.logger.Warn("Pulse begin failed", zap.Int("channel", channel), zap.Int("pin", pin), zap.String("message", st.Message))
		return st
	}

	t.mutex.Lock()
	ch := t.channel(channel)
	ch.Configured = true
	ch.Pin = pin
	t.mutex.Unlock()

	t.logger.Debug("Channel configured", zap.Int("channel", channel), zap.Int("pin", pin))
	return st
}

// Start launches count pulses on channel. On a device failure the channel
// record is left exactly as it was.
func (t *Tracker) Start(ctx context.Context, channel, pulseWidthMs, pauseWidthMs, count int) (Channel, rpc.Status) {
	st := t.device.GeneratePulsesAsync(ctx, rpc.PulseTrain{
		Channel:      channel,
		PulseWidthMs: pulseWidthMs,
		PauseWidthMs: pauseWidthMs,
		Count:        count,
	})

	t.mutex.Lock()
	defer t.mutex.Unlock()

	ch := t.channel(channel)
	if !st.OK() {
		t.logger.Warn("Pulse train start failed", zap.Int("channel", channel), zap.String("message", st.Message))
		return *ch, st
	}

	ch.TotalUnits = count
	ch.RemainingUnits = count
	ch.Active = true
	ch.State = Active
	t.reportActive()

	t.logger.Info("Pulse train started",
		zap.Int("channel", channel),
		zap.Int("count", count),
		zap.Int("pulse_width_ms", pulseWidthMs),
		zap.Int("pause_width_ms", pauseWidthMs),
	)
	return *ch, st
}

// Poll refreshes an Active channel from the device. Other channels are
// returned unchanged without touching the link.
func (t *Tracker) Poll(ctx context.Context, channel int) (Update, rpc.Status) {
	t.mutex.Lock()
	ch, ok := t.channels[channel]
	if !ok || ch.State != Active {
		snap := Channel{ID: channel, State: Idle}
		if ok {
			snap = *ch
		}
		t.mutex.Unlock()
		return Update{Channel: snap, Progress: snap.Progress()}, rpc.Status{Code: rpc.OK, Message: rpc.OK.String()}
	}
	t.mutex.Unlock()

	remaining, remainingStatus := t.device.GetRemainingPulses(ctx, channel)
	if !remainingStatus.OK() {
		t.logger.Warn("Remaining pulse query failed", zap.Int("channel", channel), zap.String("message", remainingStatus.Message))
	}
	pulsing, pulsingStatus := t.device.IsPulsing(ctx, channel)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	// Stop may have run while the lock was released
	if ch.State != Active {
		return Update{Channel: *ch, Progress: ch.Progress()}, pulsingStatus
	}

	if remainingStatus.OK() {
		ch.RemainingUnits = clamp(remaining, 0, ch.TotalUnits)
	}

	if !pulsingStatus.OK() {
		t.logger.Warn("Pulsing state query failed", zap.Int("channel", channel), zap.String("message", pulsingStatus.Message))
		return Update{Channel: *ch, Progress: ch.Progress()}, pulsingStatus
	}

	update := Update{}
	if !pulsing {
		ch.Active = false
		ch.State = Completed
		ch.RemainingUnits = 0
		update.Finished = true
		t.reportActive()
		t.logger.Info("Pulse train completed", zap.Int("channel", channel), zap.Int("total", ch.TotalUnits))
	}
	update.Channel = *ch
	update.Progress = ch.Progress()

	if !remainingStatus.OK() {
		return update, remainingStatus
	}
	return update, pulsingStatus
}

// Stop halts channel. The record ends Stopped whatever the device answers;
// the device status is returned for the caller to report.
func (t *Tracker) Stop(ctx context.Context, channel int) (Channel, rpc.Status) {
	st := t.device.StopPulse(ctx, channel)
	if !st.OK() {
		t.logger.Warn("Stop pulse failed", zap.Int("channel", channel), zap.String("message", st.Message))
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	ch := t.channel(channel)
	ch.Active = false
	ch.State = Stopped
	ch.RemainingUnits = 0
	t.reportActive()

	t.logger.Info("Pulse train stopped", zap.Int("channel", channel))
	return *ch, st
}

// Reset drops device-side state after the link was closed. Active channels
// end Stopped without contacting the device and every channel has to be
// begun again.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, ch := range t.channels {
		if ch.State == Active {
			ch.Active = false
			ch.State = Stopped
			ch.RemainingUnits = 0
			t.logger.Warn("Pulse train abandoned", zap.Int("channel", ch.ID))
		}
		ch.Configured = false
	}
	t.reportActive()
}

// Get returns a snapshot of channel
func (t *Tracker) Get(channel int) (Channel, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ch, ok := t.channels[channel]
	if !ok {
		return Channel{ID: channel, State: Idle}, false
	}
	return *ch, true
}

// Channels returns snapshots of every known channel ordered by id
func (t *Tracker) Channels() []Channel {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make([]Channel, 0, len(t.channels))
	for _, ch := range t.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
