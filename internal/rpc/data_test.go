package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataInt(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{"integer", json.Number("42"), 42, true},
		{"whole float", json.Number("42.0"), 42, true},
		{"exponent", json.Number("1e3"), 1000, true},
		{"fraction", json.Number("1.5"), 0, false},
		{"above int64", json.Number("1e30"), 0, false},
		{"below int64", json.Number("-1e30"), 0, false},
		{"float64 above int64", 9.3e18, 0, false},
		{"min int64 float", float64(-9223372036854775808), -9223372036854775808, true},
		{"native int", 7, 7, true},
		{"string", "7", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Data{"v": tc.value}.Int("v")
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
