// internal/rpc/methods.go
package rpc

import (
	"context"
	"fmt"
)

// PinModeValue is the mode argument of pinMode
type PinModeValue int

const (
	Input       PinModeValue = 0
	Output      PinModeValue = 1
	InputPullup PinModeValue = 2
)

// OLED line alignment
type Align int

const (
	AlignLeft   Align = 0
	AlignRight  Align = 1
	AlignCenter Align = 2
)

// PulseTrain describes one generatePulses request
type PulseTrain struct {
	Channel      int
	PulseWidthMs int
	PauseWidthMs int
	Count        int
}

func (p PulseTrain) params() Params {
	return Params{
		"channel":        p.Channel,
		"pulse_width_ms": p.PulseWidthMs,
		"pause_width_ms": p.PauseWidthMs,
		"pulse_count":    p.Count,
	}
}

func missingField(key string) Status {
	return Status{Code: Timeout, Message: fmt.Sprintf("missing response field %q", key)}
}

func (c *Client) status(ctx context.Context, method string, params Params) Status {
	return c.Call(ctx, method, params).Status()
}

func (c *Client) callInt(ctx context.Context, method string, params Params, key string) (int64, Status) {
	resp := c.Call(ctx, method, params)
	if resp.Code != OK {
		return 0, resp.Status()
	}
	v, ok := resp.Data.Int(key)
	if !ok {
		return 0, missingField(key)
	}
	return v, resp.Status()
}

func (c *Client) callUint(ctx context.Context, method string, params Params, key string) (uint64, Status) {
	resp := c.Call(ctx, method, params)
	if resp.Code != OK {
		return 0, resp.Status()
	}
	v, ok := resp.Data.Uint(key)
	if !ok {
		return 0, missingField(key)
	}
	return v, resp.Status()
}

func (c *Client) callFloat(ctx context.Context, method string, params Params, key string) (float64, Status) {
	resp := c.Call(ctx, method, params)
	if resp.Code != OK {
		return 0, resp.Status()
	}
	v, ok := resp.Data.Float(key)
	if !ok {
		return 0, missingField(key)
	}
	return v, resp.Status()
}

func (c *Client) callBool(ctx context.Context, method string, params Params, key string) (bool, Status) {
	resp := c.Call(ctx, method, params)
	if resp.Code != OK {
		return false, resp.Status()
	}
	v, ok := resp.Data.Bool(key)
	if !ok {
		return false, missingField(key)
	}
	return v, resp.Status()
}

// GPIO

// PinMode configures pin as input, output or input with pull-up
func (c *Client) PinMode(ctx context.Context, pin int, mode PinModeValue) Status {
	return c.status(ctx, MethodPinMode, Params{"pin": pin, "mode": int(mode)})
}

// DigitalWrite drives pin low (0) or high (1)
func (c *Client) DigitalWrite(ctx context.Context, pin, value int) Status {
	return c.status(ctx, MethodDigitalWrite, Params{"pin": pin, "value": value})
}

// DigitalRead returns the level of pin from data key "value"
func (c *Client) DigitalRead(ctx context.Context, pin int) (int, Status) {
	v, st := c.callInt(ctx, MethodDigitalRead, Params{"pin": pin}, "value")
	return int(v), st
}

// AnalogWrite writes an 8-bit PWM value to pin
func (c *Client) AnalogWrite(ctx context.Context, pin, value int) Status {
	return c.status(ctx, MethodAnalogWrite, Params{"pin": pin, "value": value})
}

// AnalogRead returns the ADC reading of pin from data key "value"
func (c *Client) AnalogRead(ctx context.Context, pin int) (int, Status) {
	v, st := c.callInt(ctx, MethodAnalogRead, Params{"pin": pin}, "value")
	return int(v), st
}

// System

// Delay blocks the device for ms milliseconds; the reply arrives afterwards,
// so the client timeout must exceed ms
func (c *Client) Delay(ctx context.Context, ms int) Status {
	return c.status(ctx, MethodDelay, Params{"ms": ms})
}

// GetMillis returns device uptime in ms from data key "millis"
func (c *Client) GetMillis(ctx context.Context) (int64, Status) {
	return c.callInt(ctx, MethodMillis, nil, "millis")
}

// GetFreeMem returns free heap bytes from data key "free_heap"
func (c *Client) GetFreeMem(ctx context.Context) (int64, Status) {
	return c.callInt(ctx, MethodFreeMem, nil, "free_heap")
}

// GetChipID returns the 48-bit chip id from data key "chip_id"
func (c *Client) GetChipID(ctx context.Context) (uint64, Status) {
	return c.callUint(ctx, MethodChipID, nil, "chip_id")
}

// PWM

// LedcSetup configures a PWM channel frequency and resolution in bits
func (c *Client) LedcSetup(ctx context.Context, channel, freq, bits int) Status {
	return c.status(ctx, MethodLedcSetup, Params{"channel": channel, "freq": freq, "bits": bits})
}

// LedcWrite sets the duty cycle of a PWM channel
func (c *Client) LedcWrite(ctx context.Context, channel, duty int) Status {
	return c.status(ctx, MethodLedcWrite, Params{"channel": channel, "duty": duty})
}

// Pulse generation

// PulseBegin binds a pulse channel to pin
func (c *Client) PulseBegin(ctx context.Context, channel, pin int) Status {
	return c.status(ctx, MethodPulseBegin, Params{"channel": channel, "pin": pin})
}

// Pulse emits one pulse and replies once it has ended
func (c *Client) Pulse(ctx context.Context, channel, durationMs int) Status {
	return c.status(ctx, MethodPulse, Params{"channel": channel, "duration_ms": durationMs})
}

// PulseAsync emits one pulse without waiting for it to end
func (c *Client) PulseAsync(ctx context.Context, channel, durationMs int) Status {
	return c.status(ctx, MethodPulseAsync, Params{"channel": channel, "duration_ms": durationMs})
}

// GeneratePulses runs a whole pulse train before replying
func (c *Client) GeneratePulses(ctx context.Context, train PulseTrain) Status {
	return c.status(ctx, MethodGeneratePulses, train.params())
}

// GeneratePulsesAsync starts a pulse train and replies immediately
func (c *Client) GeneratePulsesAsync(ctx context.Context, train PulseTrain) Status {
	return c.status(ctx, MethodGeneratePulsesAsync, train.params())
}

// IsPulsing reports a running train from data key "pulsing"
func (c *Client) IsPulsing(ctx context.Context, channel int) (bool, Status) {
	return c.callBool(ctx, MethodIsPulsing, Params{"channel": channel}, "pulsing")
}

// GetRemainingPulses returns pulses still to be sent from data key "remaining"
func (c *Client) GetRemainingPulses(ctx context.Context, channel int) (int, Status) {
	v, st := c.callInt(ctx, MethodGetRemainingPulses, Params{"channel": channel}, "remaining")
	return int(v), st
}

// StopPulse halts the train on channel
func (c *Client) StopPulse(ctx context.Context, channel int) Status {
	return c.status(ctx, MethodStopPulse, Params{"channel": channel})
}

// ADC / analog buttons

// AdcReadRaw returns the averaged raw ADC count from data key "raw"
func (c *Client) AdcReadRaw(ctx context.Context, channel, averageCount int) (int, Status) {
	v, st := c.callInt(ctx, MethodAdcReadRaw, Params{"channel": channel, "averageCount": averageCount}, "raw")
	return int(v), st
}

// AdcReadVoltage returns the averaged voltage from data key "voltage"
func (c *Client) AdcReadVoltage(ctx context.Context, channel, averageCount int) (float64, Status) {
	return c.callFloat(ctx, MethodAdcReadVoltage, Params{"channel": channel, "averageCount": averageCount}, "voltage")
}

// IsButtonPressed reads an analog button from data key "pressed"
func (c *Client) IsButtonPressed(ctx context.Context, button int) (bool, Status) {
	return c.callBool(ctx, MethodIsButtonPressed, Params{"analogButton": button}, "pressed")
}

// DAC

// DacSetVoltage sets one DAC output
func (c *Client) DacSetVoltage(ctx context.Context, channel int, voltage float64) Status {
	return c.status(ctx, MethodDacSetVoltage, Params{"channel": channel, "voltage": voltage})
}

// DacSetVoltageAll sets every DAC output
func (c *Client) DacSetVoltageAll(ctx context.Context, voltage float64) Status {
	return c.status(ctx, MethodDacSetVoltageAll, Params{"voltage": voltage})
}

// Digital I/O expander

// DioGetInput returns the expander input byte from data key "value"
func (c *Client) DioGetInput(ctx context.Context) (int, Status) {
	v, st := c.callInt(ctx, MethodDioGetInput, nil, "value")
	return int(v), st
}

// DioIsBitSet tests one expander input from data key "bitSet"
func (c *Client) DioIsBitSet(ctx context.Context, bit int) (bool, Status) {
	return c.callBool(ctx, MethodDioIsBitSet, Params{"bitNumber": bit}, "bitSet")
}

// DioSetOutput writes the expander output byte
func (c *Client) DioSetOutput(ctx context.Context, value int) Status {
	return c.status(ctx, MethodDioSetOutput, Params{"value": value})
}

// DioSetBit sets one expander output
func (c *Client) DioSetBit(ctx context.Context, bit int) Status {
	return c.status(ctx, MethodDioSetBit, Params{"bitNumber": bit})
}

// DioClearBit clears one expander output
func (c *Client) DioClearBit(ctx context.Context, bit int) Status {
	return c.status(ctx, MethodDioClearBit, Params{"bitNumber": bit})
}

// DioToggleBit flips one expander output
func (c *Client) DioToggleBit(ctx context.Context, bit int) Status {
	return c.status(ctx, MethodDioToggleBit, Params{"bitNumber": bit})
}

// Quadrature counter

// QcEnableCounter starts a quadrature counter
func (c *Client) QcEnableCounter(ctx context.Context, channel int) Status {
	return c.status(ctx, MethodQcEnableCounter, Params{"channel": channel})
}

// QcDisableCounter stops a quadrature counter
func (c *Client) QcDisableCounter(ctx context.Context, channel int) Status {
	return c.status(ctx, MethodQcDisableCounter, Params{"channel": channel})
}

// QcClearCountRegister zeroes a quadrature counter
func (c *Client) QcClearCountRegister(ctx context.Context, channel int) Status {
	return c.status(ctx, MethodQcClearCountRegister, Params{"channel": channel})
}

// QcReadCountRegister returns the count from data key "count"
func (c *Client) QcReadCountRegister(ctx context.Context, channel int) (int64, Status) {
	return c.callInt(ctx, MethodQcReadCountRegister, Params{"channel": channel}, "count")
}

// OLED

// OledClear blanks the display
func (c *Client) OledClear(ctx context.Context) Status {
	return c.status(ctx, MethodOledClear, nil)
}

// OledWriteLine writes text on one display line
func (c *Client) OledWriteLine(ctx context.Context, line int, text string, align Align) Status {
	return c.status(ctx, MethodOledWriteLine, Params{"line": line, "text": text, "align": int(align)})
}
