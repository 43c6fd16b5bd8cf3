package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, "device-rpc", cfg.App.Name)
	assert.Equal(t, "serial", cfg.Transport.Mode)
	assert.Equal(t, 2*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Transport.Serial.Port)
	assert.Equal(t, 115200, cfg.Transport.Serial.BaudRate)
	assert.Equal(t, 5*time.Second, cfg.Transport.Serial.ResetSettle)
	assert.Equal(t, 2*time.Second, cfg.Transport.Serial.ReadySettle)
	assert.Equal(t, 10*time.Millisecond, cfg.Transport.Serial.PollInterval)
	assert.Equal(t, "192.168.1.100", cfg.Transport.Socket.Host)
	assert.Equal(t, 5000, cfg.Transport.Socket.Port)
	assert.Equal(t, 120*time.Millisecond, cfg.Motion.PollInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Motion.Axes)
	assert.True(t, cfg.Discovery.Serial)
	assert.Empty(t, cfg.Discovery.TCPHosts)
	assert.Equal(t, 5000, cfg.Discovery.TCPPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.TCPTimeout)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(nil, filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "wifi", cfg.Transport.Mode)
	assert.Equal(t, 3*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 5, cfg.Transport.ConnectRetries)
	assert.Equal(t, "10.0.0.7", cfg.Transport.Socket.Host)
	assert.Equal(t, 5001, cfg.Transport.Socket.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.Motion.PollInterval)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Discovery.Serial)
	assert.Equal(t, []string{"10.0.0.7", "10.0.0.8"}, cfg.Discovery.TCPHosts)

	tc := cfg.Transport.TransportConfig()
	assert.Equal(t, "wifi", tc.Mode)
	assert.Equal(t, 5001, tc.Socket.Port)
	assert.Equal(t, 2*time.Second, tc.Socket.ConnectTimeout)

	axes := cfg.Motion.AxisConfigs()
	require.Len(t, axes, 2)
	assert.Equal(t, "X", axes[0].Name)
	assert.Equal(t, "mm", axes[0].Unit)
	assert.Equal(t, 3, axes[0].PulseWidthMs)
	assert.Equal(t, 4, axes[0].PauseWidthMs)
	assert.True(t, axes[0].StartPosition.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, axes[0].HasLimits())

	assert.Equal(t, "deg", axes[1].Unit)
	assert.Equal(t, 1, axes[1].PulseWidthMs)
	assert.True(t, axes[1].PulsesPerUnit.Equal(decimal.RequireFromString("400.5")))
	assert.False(t, axes[1].HasLimits())
}

func TestLoadEnvOverride(t *testing.T) {
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DEVICE_RPC_TRANSPORT_MODE", "tcp")
	t.Setenv("DEVICE_RPC_TRANSPORT_SOCKET_HOST", "device.local")
	t.Setenv("DEVICE_RPC_LOGGING_LEVEL", "warn")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport.Mode)
	assert.Equal(t, "device.local", cfg.Transport.Socket.Host)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"bad mode":        "transport:\n  mode: carrier-pigeon\n",
		"bad level":       "logging:\n  level: loud\n",
		"bad baud":        "transport:\n  serial:\n    baud_rate: 12345\n",
		"bad socket port": "transport:\n  mode: socket\n  socket:\n    port: 70000\n",
		"bad axis":        "motion:\n  axes:\n    - name: X\n      pulses_per_unit: 0\n",
		"zero retries":    "transport:\n  connect_retries: 0\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := Load(nil, path)
			assert.Error(t, err)
		})
	}
}
