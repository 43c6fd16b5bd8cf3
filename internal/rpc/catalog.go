// internal/rpc/catalog.go
package rpc

// Method names understood by the firmware
const (
	MethodPinMode      = "pinMode"
	MethodDigitalWrite = "digitalWrite"
	MethodDigitalRead  = "digitalRead"
	MethodAnalogWrite  = "analogWrite"
	MethodAnalogRead   = "analogRead"
	MethodDelay        = "delay"
	MethodMillis       = "millis"
	MethodFreeMem      = "freeMem"
	MethodChipID       = "chipID"

	MethodLedcSetup = "ledcSetup"
	MethodLedcWrite = "ledcWrite"

	MethodPulseBegin          = "pulseBegin"
	MethodPulse               = "pulse"
	MethodPulseAsync          = "pulseAsync"
	MethodGeneratePulses      = "generatePulses"
	MethodGeneratePulsesAsync = "generatePulsesAsync"
	MethodIsPulsing           = "isPulsing"
	MethodGetRemainingPulses  = "getRemainingPulses"
	MethodStopPulse           = "stopPulse"

	MethodAdcReadRaw      = "adcReadRaw"
	MethodAdcReadVoltage  = "adcReadVoltage"
	MethodIsButtonPressed = "isButtonPressed"

	MethodDacSetVoltage    = "dacSetVoltage"
	MethodDacSetVoltageAll = "dacSetVoltageAll"

	MethodDioGetInput  = "dioGetInput"
	MethodDioIsBitSet  = "dioIsBitSet"
	MethodDioSetOutput = "dioSetOutput"
	MethodDioSetBit    = "dioSetBit"
	MethodDioClearBit  = "dioClearBit"
	MethodDioToggleBit = "dioToggleBit"

	MethodQcEnableCounter      = "qcEnableCounter"
	MethodQcDisableCounter     = "qcDisableCounter"
	MethodQcClearCountRegister = "qcClearCountRegister"
	MethodQcReadCountRegister  = "qcReadCountRegister"

	MethodOledClear     = "oledClear"
	MethodOledWriteLine = "oledWriteLine"
)

// MethodInfo describes one catalog entry
type MethodInfo struct {
	Name     string   `json:"name"`
	Params   []string `json:"params"`
	Returns  string   `json:"returns,omitempty"`
	Blocking bool     `json:"blocking,omitempty"`
}

var catalog = []MethodInfo{
	{Name: MethodPinMode, Params: []string{"pin", "mode"}},
	{Name: MethodDigitalWrite, Params: []string{"pin", "value"}},
	{Name: MethodDigitalRead, Params: []string{"pin"}, Returns: "value"},
	{Name: MethodAnalogWrite, Params: []string{"pin", "value"}},
	{Name: MethodAnalogRead, Params: []string{"pin"}, Returns: "value"},
	{Name: MethodDelay, Params: []string{"ms"}, Blocking: true},
	{Name: MethodMillis, Returns: "millis"},
	{Name: MethodFreeMem, Returns: "free_heap"},
	{Name: MethodChipID, Returns: "chip_id"},
	{Name: MethodLedcSetup, Params: []string{"channel", "freq", "bits"}},
	{Name: MethodLedcWrite, Params: []string{"channel", "duty"}},
	{Name: MethodPulseBegin, Params: []string{"channel", "pin"}},
	{Name: MethodPulse, Params: []string{"channel", "duration_ms"}, Blocking: true},
	{Name: MethodPulseAsync, Params: []string{"channel", "duration_ms"}},
	{Name: MethodGeneratePulses, Params: pulseTrainParams, Blocking: true},
	{Name: MethodGeneratePulsesAsync, Params: pulseTrainParams},
	{Name: MethodIsPulsing, Params: []string{"channel"}, Returns: "pulsing"},
	{Name: MethodGetRemainingPulses, Params: []string{"channel"}, Returns: "remaining"},
	{Name: MethodStopPulse, Params: []string{"channel"}},
	{Name: MethodAdcReadRaw, Params: []string{"channel", "averageCount"}, Returns: "raw"},
	{Name: MethodAdcReadVoltage, Params: []string{"channel", "averageCount"}, Returns: "voltage"},
	{Name: MethodIsButtonPressed, Params: []string{"analogButton"}, Returns: "pressed"},
	{Name: MethodDacSetVoltage, Params: []string{"channel", "voltage"}},
	{Name: MethodDacSetVoltageAll, Params: []string{"voltage"}},
	{Name: MethodDioGetInput, Returns: "value"},
	{Name: MethodDioIsBitSet, Params: []string{"bitNumber"}, Returns: "bitSet"},
	{Name: MethodDioSetOutput, Params: []string{"value"}},
	{Name: MethodDioSetBit, Params: []string{"bitNumber"}},
	{Name: MethodDioClearBit, Params: []string{"bitNumber"}},
	{Name: MethodDioToggleBit, Params: []string{"bitNumber"}},
	{Name: MethodQcEnableCounter, Params: []string{"channel"}},
	{Name: MethodQcDisableCounter, Params: []string{"channel"}},
	{Name: MethodQcClearCountRegister, Params: []string{"channel"}},
	{Name: MethodQcReadCountRegister, Params: []string{"channel"}, Returns: "count"},
	{Name: MethodOledClear},
	{Name: MethodOledWriteLine, Params: []string{"line", "text", "align"}},
}

var pulseTrainParams = []string{"channel", "pulse_width_ms", "pause_width_ms", "pulse_count"}

// Catalog returns a copy of the known method table
func Catalog() []MethodInfo {
	out := make([]MethodInfo, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a catalog entry by method name
func Lookup(name string) (MethodInfo, bool) {
	for _, m := range catalog {
		if m.Name == name {
			return m, true
		}
	}
	return MethodInfo{}, false
}
