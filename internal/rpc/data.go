// internal/rpc/data.go
package rpc

import (
	"encoding/json"
	"math"
	"strconv"
)

// Params is the parameter mapping of a request
type Params map[string]any

// Data is the method specific payload of a reply. Numbers are kept as
// json.Number so integer values survive without float rounding.
type Data map[string]any

// Int returns key as an integer
func (d Data) Int(key string) (int64, bool) {
	switch v := d[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float64:
		return floatToInt(v)
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// floatToInt accepts only whole values representable as int64
func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Uint returns key as an unsigned integer
func (d Data) Uint(key string) (uint64, bool) {
	if v, ok := d[key].(json.Number); ok {
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return n, err == nil
	}
	n, ok := d.Int(key)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

// Float returns key as a float
func (d Data) Float(key string) (float64, bool) {
	switch v := d[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Bool returns key as a bool; firmware builds that report flags as 0/1 are
// accepted too
func (d Data) Bool(key string) (bool, bool) {
	if v, ok := d[key].(bool); ok {
		return v, true
	}
	n, ok := d.Int(key)
	if !ok || (n != 0 && n != 1) {
		return false, false
	}
	return n == 1, true
}

// String returns key as a string
func (d Data) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}
