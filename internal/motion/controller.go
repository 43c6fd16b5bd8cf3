// internal/motion/controller.go
package motion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"device-rpc/internal/model"
	"device-rpc/internal/rpc"
	"device-rpc/internal/tracker"
)

// DefaultPollInterval is the Run cadence when none is configured
const DefaultPollInterval = 120 * time.Millisecond

var (
	ErrUnknownAxis = errors.New("unknown axis")
	ErrAxisMoving  = errors.New("axis is already moving")
	ErrOutOfRange  = errors.New("target outside soft limits")
	ErrNoMotion    = errors.New("target equals current position")
	ErrTooSmall    = errors.New("move rounds to zero pulses")
)

// Device is the rpc surface used for motion
type Device interface {
	tracker.PulseDevice
	PinMode(ctx context.Context, pin int, mode rpc.PinModeValue) rpc.Status
	DigitalWrite(ctx context.Context, pin, value int) rpc.Status
	IsConnected() bool
}

// Controller turns position requests into pulse trains on step/dir axes
type Controller struct {
	device    Device
	tracker   *tracker.Tracker
	publisher model.Publisher
	logger    *zap.Logger

	mutex sync.Mutex
	axes  map[string]*axisState
	order []string
}

// NewController creates a controller for axes. Duplicate or invalid axis
// definitions are rejected.
func NewController(device Device, axes []AxisConfig, publisher model.Publisher, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = model.Discard{}
	}

	c := &Controller{
		device:    device,
		tracker:   tracker.New(device, logger),
		publisher: publisher,
		logger:    logger.With(zap.String("component", "motion")),
		axes:      make(map[string]*axisState, len(axes)),
	}

	channels := make(map[int]string, len(axes))
	for _, cfg := range axes {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		key := axisKey(cfg.Name)
		if _, dup := c.axes[key]; dup {
			return nil, fmt.Errorf("duplicate axis %q", cfg.Name)
		}
		if other, dup := channels[cfg.Channel]; dup {
			return nil, fmt.Errorf("axis %s reuses channel %d of axis %s", cfg.Name, cfg.Channel, other)
		}
		channels[cfg.Channel] = cfg.Name
		c.axes[key] = newAxisState(cfg)
		c.order = append(c.order, key)
	}
	return c, nil
}

// Tracker exposes the pulse tracker owned by the controller
func (c *Controller) Tracker() *tracker.Tracker {
	return c.tracker
}

// Init configures every direction pin as output and binds each step pin to
// its pulse channel. It stops at the first failing axis.
func (c *Controller) Init(ctx context.Context) error {
	for _, key := range c.order {
		cfg := c.axes[key].config

		if st := c.device.PinMode(ctx, cfg.DirPin, rpc.Output); !st.OK() {
			return fmt.Errorf("axis %s: failed to set direction pin mode: %w", cfg.Name, st.Err())
		}
		if st := c.tracker.Begin(ctx, cfg.Channel, cfg.StepPin); !st.OK() {
			return fmt.Errorf("axis %s: failed to begin pulse channel: %w", cfg.Name, st.Err())
		}
		c.logger.Info("Axis initialized",
			zap.String("axis", cfg.Name),
			zap.Int("channel", cfg.Channel),
			zap.Int("step_pin", cfg.StepPin),
			zap.Int("dir_pin", cfg.DirPin),
		)
	}
	return nil
}

// MoveAbsolute moves axis to target
func (c *Controller) MoveAbsolute(ctx context.Context, axis string, target decimal.Decimal) (Move, error) {
	return c.move(ctx, axis, func(position decimal.Decimal) decimal.Decimal {
		return target.Sub(position)
	})
}

// MoveRelative moves axis by delta
func (c *Controller) MoveRelative(ctx context.Context, axis string, delta decimal.Decimal) (Move, error) {
	return c.move(ctx, axis, func(decimal.Decimal) decimal.Decimal {
		return delta
	})
}

func (c *Controller) move(ctx context.Context, name string, deltaFor func(position decimal.Decimal) decimal.Decimal) (Move, error) {
	c.mutex.Lock()
	state, ok := c.axes[axisKey(name)]
	if !ok {
		c.mutex.Unlock()
		return Move{}, fmt.Errorf("%w: %s", ErrUnknownAxis, name)
	}
	cfg := state.config
	if state.moving {
		c.mutex.Unlock()
		return Move{}, fmt.Errorf("axis %s: %w", cfg.Name, ErrAxisMoving)
	}

	from := state.position
	delta := deltaFor(from)
	target := from.Add(delta)

	if delta.IsZero() {
		c.mutex.Unlock()
		return Move{}, fmt.Errorf("axis %s: %w", cfg.Name, ErrNoMotion)
	}
	if cfg.HasLimits() && (target.LessThan(cfg.SoftMin) || target.GreaterThan(cfg.SoftMax)) {
		c.mutex.Unlock()
		return Move{}, fmt.Errorf("axis %s: %w: %s not in [%s, %s]", cfg.Name, ErrOutOfRange, target, cfg.SoftMin, cfg.SoftMax)
	}
	pulses := int(delta.Abs().Mul(cfg.PulsesPerUnit).RoundBank(0).IntPart())
	if pulses <= 0 {
		c.mutex.Unlock()
		return Move{}, fmt.Errorf("axis %s: %w", cfg.Name, ErrTooSmall)
	}

	// reserve the axis while the device is configured
	state.moving = true
	state.status = statusMoving
	c.mutex.Unlock()

	direction := 0
	if delta.IsPositive() {
		direction = 1
	}

	move := Move{
		OperationID: uuid.New(),
		Axis:        cfg.Name,
		From:        from,
		Target:      target,
		Delta:       delta,
		Pulses:      pulses,
		Direction:   direction,
	}

	fail := func(st rpc.Status, what string) (Move, error) {
		c.mutex.Lock()
		state.moving = false
		state.status = statusIdle
		c.mutex.Unlock()
		c.logger.Warn("Move rejected by device", zap.String("axis", cfg.Name), zap.String("step", what), zap.String("message", st.Message))
		return Move{}, fmt.Errorf("axis %s: %s failed: %w", cfg.Name, what, st.Err())
	}

	if st := c.device.DigitalWrite(ctx, cfg.DirPin, direction); !st.OK() {
		return fail(st, "set direction")
	}
	if _, st := c.tracker.Start(ctx, cfg.Channel, cfg.PulseWidthMs, cfg.PauseWidthMs, pulses); !st.OK() {
		return fail(st, "start pulses")
	}

	c.mutex.Lock()
	if !state.moving {
		// stopped while the train was being started
		c.mutex.Unlock()
		c.tracker.Stop(ctx, cfg.Channel)
		return Move{}, fmt.Errorf("axis %s: stopped before the move started", cfg.Name)
	}
	state.pendingDelta = delta
	state.total = pulses
	state.remaining = pulses
	state.progress = 0
	state.operation = move.OperationID
	c.mutex.Unlock()

	c.logger.Info("Move started",
		zap.String("axis", cfg.Name),
		zap.String("operation_id", move.OperationID.String()),
		zap.String("from", from.String()),
		zap.String("target", target.String()),
		zap.Int("pulses", pulses),
		zap.Int("direction", direction),
	)
	c.publish(model.EventMotionStarted, move.OperationID, cfg.Name, map[string]any{
		"from":   from.String(),
		"target": target.String(),
		"pulses": pulses,
	})
	return move, nil
}

// Tick polls every moving axis once. Moves still running when the link is
// found closed are aborted.
func (c *Controller) Tick(ctx context.Context) {
	if !c.device.IsConnected() {
		if c.anyMoving() {
			c.logger.Warn("Link lost during motion")
			c.Abort()
		}
		return
	}

	for _, key := range c.order {
		c.mutex.Lock()
		state := c.axes[key]
		if !state.moving || state.operation == uuid.Nil {
			c.mutex.Unlock()
			continue
		}
		channel := state.config.Channel
		c.mutex.Unlock()

		update, st := c.tracker.Poll(ctx, channel)

		c.mutex.Lock()
		if !state.moving {
			// stopped while polling
			c.mutex.Unlock()
			continue
		}
		opID := state.operation
		name := state.config.Name

		if update.Finished {
			state.settle(decimal.NewFromInt(1), statusDone)
			state.progress = 1
			position := state.position
			c.mutex.Unlock()

			c.logger.Info("Move completed", zap.String("axis", name), zap.String("position", position.String()))
			c.publish(model.EventMotionCompleted, opID, name, map[string]any{
				"position": position.String(),
			})
			continue
		}

		state.remaining = update.Channel.RemainingUnits
		state.progress = update.Progress
		progress, remaining := state.progress, state.remaining
		c.mutex.Unlock()

		if !st.OK() {
			c.publish(model.EventMotionError, opID, name, map[string]any{
				"result":  int(st.Code),
				"message": st.Message,
			})
			continue
		}
		c.publish(model.EventMotionProgress, opID, name, map[string]any{
			"progress":  progress,
			"remaining": remaining,
		})
	}
}

// Run calls Tick every interval until ctx is done
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("Motion poll loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Motion poll loop stopped")
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Stop halts axis. The position advances by the share of the move that was
// already driven according to the last poll.
func (c *Controller) Stop(ctx context.Context, axis string) (Axis, error) {
	return c.stop(ctx, axis, statusStopped)
}

func (c *Controller) stop(ctx context.Context, name string, status string) (Axis, error) {
	c.mutex.Lock()
	state, ok := c.axes[axisKey(name)]
	if !ok {
		c.mutex.Unlock()
		return Axis{}, fmt.Errorf("%w: %s", ErrUnknownAxis, name)
	}
	channel := state.config.Channel
	c.mutex.Unlock()

	_, st := c.tracker.Stop(ctx, channel)

	c.mutex.Lock()
	wasMoving := state.moving
	opID := state.operation
	if wasMoving {
		state.settle(state.driven(), status)
		state.progress = 0
	} else {
		state.status = status
	}
	snap := state.snapshot()
	c.mutex.Unlock()

	c.logger.Info("Axis stopped",
		zap.String("axis", snap.Name),
		zap.Bool("was_moving", wasMoving),
		zap.String("position", snap.Position.String()),
	)
	c.publish(model.EventMotionStopped, opID, snap.Name, map[string]any{
		"position": snap.Position.String(),
		"status":   status,
	})

	if !st.OK() {
		return snap, fmt.Errorf("axis %s: stop failed: %w", snap.Name, st.Err())
	}
	return snap, nil
}

// EmergencyStop stops every axis and reports all device failures together
func (c *Controller) EmergencyStop(ctx context.Context) error {
	var errs []error
	for _, key := range c.order {
		if _, err := c.stop(ctx, key, statusEmergency); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		c.logger.Error("Emergency stop incomplete", zap.Error(err))
	} else {
		c.logger.Warn("Emergency stop: all axes stopped")
	}
	return err
}

// Abort ends every move without contacting the device, for use once the
// link is gone. Positions advance by the share driven at the last poll and
// the pulse channels must be initialized again.
func (c *Controller) Abort() {
	type abortedMove struct {
		opID     uuid.UUID
		name     string
		position decimal.Decimal
	}

	c.mutex.Lock()
	var aborted []abortedMove
	for _, key := range c.order {
		state := c.axes[key]
		if !state.moving {
			continue
		}
		opID := state.operation
		state.settle(state.driven(), statusAborted)
		state.progress = 0
		aborted = append(aborted, abortedMove{opID: opID, name: state.config.Name, position: state.position})
	}
	c.mutex.Unlock()

	c.tracker.Reset()

	for _, m := range aborted {
		c.logger.Warn("Move aborted", zap.String("axis", m.name), zap.String("position", m.position.String()))
		c.publish(model.EventMotionStopped, m.opID, m.name, map[string]any{
			"position": m.position.String(),
			"status":   statusAborted,
		})
	}
}

func (c *Controller) anyMoving() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, state := range c.axes {
		if state.moving {
			return true
		}
	}
	return false
}

// Axes returns snapshots in configuration order
func (c *Controller) Axes() []Axis {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	out := make([]Axis, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.axes[key].snapshot())
	}
	return out
}

// Axis returns one snapshot
func (c *Controller) Axis(name string) (Axis, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	state, ok := c.axes[axisKey(name)]
	if !ok {
		return Axis{}, fmt.Errorf("%w: %s", ErrUnknownAxis, name)
	}
	return state.snapshot(), nil
}

func (c *Controller) publish(eventType model.EventType, opID uuid.UUID, axis string, data map[string]any) {
	data["axis"] = axis
	if opID != uuid.Nil {
		data["operation_id"] = opID.String()
	}
	c.publisher.Publish(model.NewEvent(eventType, "motion", data))
}
