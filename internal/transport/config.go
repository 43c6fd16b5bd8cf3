// internal/transport/config.go
package transport

import "time"

// Config selects and configures a transport
type Config struct {
	Mode   string       `json:"mode"`
	Serial SerialConfig `json:"serial"`
	Socket SocketConfig `json:"socket"`
}

// SerialConfig represents serial link configuration
type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`

	// ResetSettle is the wait after opening the port while the board reboots
	ResetSettle time.Duration `json:"reset_settle"`
	// ReadySettle is the wait after flushing stale bytes
	ReadySettle time.Duration `json:"ready_settle"`
	// PollInterval bounds a single driver read
	PollInterval time.Duration `json:"poll_interval"`
}

// SocketConfig represents TCP link configuration
type SocketConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	KeepAlive      bool          `json:"keep_alive"`
	BufferSize     int           `json:"buffer_size"`
	PollInterval   time.Duration `json:"poll_interval"`
}

// DefaultSerialConfig returns the settings used by the stock firmware
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:         "/dev/ttyUSB0",
		BaudRate:     115200,
		DataBits:     8,
		StopBits:     1,
		Parity:       "none",
		ResetSettle:  5 * time.Second,
		ReadySettle:  2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

// DefaultSocketConfig returns the settings used by the stock firmware
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		Host:           "192.168.1.100",
		Port:           5000,
		ConnectTimeout: 2 * time.Second,
		KeepAlive:      true,
		BufferSize:     1024,
		PollInterval:   10 * time.Millisecond,
	}
}

func (c *SerialConfig) applyDefaults() {
	def := DefaultSerialConfig()
	if c.BaudRate == 0 {
		c.BaudRate = def.BaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = def.DataBits
	}
	if c.StopBits == 0 {
		c.StopBits = def.StopBits
	}
	if c.Parity == "" {
		c.Parity = def.Parity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
}

func (c *SocketConfig) applyDefaults() {
	def := DefaultSocketConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
}
