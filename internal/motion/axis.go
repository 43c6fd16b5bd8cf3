// internal/motion/axis.go
package motion

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AxisConfig describes one stepper axis driven by a step/dir pair
type AxisConfig struct {
	Name          string
	Channel       int
	StepPin       int
	DirPin        int
	PulsesPerUnit decimal.Decimal
	Unit          string
	SoftMin       decimal.Decimal
	SoftMax       decimal.Decimal
	StartPosition decimal.Decimal
	PulseWidthMs  int
	PauseWidthMs  int
}

// HasLimits reports whether soft limits are configured. An empty range
// (min == max) means the axis is unbounded.
func (c AxisConfig) HasLimits() bool {
	return c.SoftMax.GreaterThan(c.SoftMin)
}

// Validate checks the fields a move depends on
func (c AxisConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("axis name is required")
	}
	if !c.PulsesPerUnit.IsPositive() {
		return fmt.Errorf("axis %s: pulses_per_unit must be positive", c.Name)
	}
	if c.PulseWidthMs <= 0 || c.PauseWidthMs <= 0 {
		return fmt.Errorf("axis %s: pulse and pause width must be positive", c.Name)
	}
	if c.SoftMax.LessThan(c.SoftMin) {
		return fmt.Errorf("axis %s: soft_max below soft_min", c.Name)
	}
	if c.HasLimits() && (c.StartPosition.LessThan(c.SoftMin) || c.StartPosition.GreaterThan(c.SoftMax)) {
		return fmt.Errorf("axis %s: start position outside soft limits", c.Name)
	}
	return nil
}

func axisKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Axis is a snapshot of one axis
type Axis struct {
	Name        string          `json:"name"`
	Channel     int             `json:"channel"`
	Unit        string          `json:"unit"`
	Position    decimal.Decimal `json:"position"`
	Target      decimal.Decimal `json:"target"`
	SoftMin     decimal.Decimal `json:"soft_min"`
	SoftMax     decimal.Decimal `json:"soft_max"`
	Moving      bool            `json:"moving"`
	Progress    float64         `json:"progress"`
	Status      string          `json:"status"`
	OperationID string          `json:"operation_id,omitempty"`
}

// Move describes an accepted motion request
type Move struct {
	OperationID uuid.UUID       `json:"operation_id"`
	Axis        string          `json:"axis"`
	From        decimal.Decimal `json:"from"`
	Target      decimal.Decimal `json:"target"`
	Delta       decimal.Decimal `json:"delta"`
	Pulses      int             `json:"pulses"`
	Direction   int             `json:"direction"`
}

// axis status strings
const (
	statusIdle      = "idle"
	statusMoving    = "moving"
	statusDone      = "done"
	statusStopped   = "stopped"
	statusEmergency = "emergency_stop"
	statusAborted   = "aborted"
)

type axisState struct {
	config AxisConfig

	position     decimal.Decimal
	pendingDelta decimal.Decimal
	total        int
	remaining    int
	moving       bool
	progress     float64
	status       string
	operation    uuid.UUID
}

func newAxisState(config AxisConfig) *axisState {
	return &axisState{
		config:   config,
		position: config.StartPosition,
		status:   statusIdle,
	}
}

func (a *axisState) snapshot() Axis {
	target := a.position
	opID := ""
	if a.moving && a.operation != uuid.Nil {
		target = a.position.Add(a.pendingDelta)
		opID = a.operation.String()
	}
	return Axis{
		Name:        a.config.Name,
		Channel:     a.config.Channel,
		Unit:        a.config.Unit,
		Position:    a.position,
		Target:      target,
		SoftMin:     a.config.SoftMin,
		SoftMax:     a.config.SoftMax,
		Moving:      a.moving,
		Progress:    a.progress,
		Status:      a.status,
		OperationID: opID,
	}
}

// driven is the share of the current move completed at the last poll
func (a *axisState) driven() decimal.Decimal {
	if a.total <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(a.total - a.remaining)).Div(decimal.NewFromInt(int64(a.total)))
}

// settle ends the current move, committing fraction of the pending delta
func (a *axisState) settle(fraction decimal.Decimal, status string) {
	a.position = a.position.Add(a.pendingDelta.Mul(fraction))
	a.pendingDelta = decimal.Zero
	a.moving = false
	a.total = 0
	a.remaining = 0
	a.operation = uuid.Nil
	a.status = status
}
