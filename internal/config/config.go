// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"device-rpc/internal/motion"
	"device-rpc/internal/transport"
)

// EnvPrefix prefixes environment overrides, e.g. DEVICE_RPC_TRANSPORT_MODE
const EnvPrefix = "DEVICE_RPC"

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Motion    MotionConfig    `mapstructure:"motion"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig represents HTTP gateway configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// TransportConfig represents the device link
type TransportConfig struct {
	Mode           string        `mapstructure:"mode"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectRetries int           `mapstructure:"connect_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	AutoConnect    bool          `mapstructure:"auto_connect"`
	Serial         SerialConfig  `mapstructure:"serial"`
	Socket         SocketConfig  `mapstructure:"socket"`
}

// SerialConfig represents serial port configuration
type SerialConfig struct {
	Port         string        `mapstructure:"port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	DataBits     int           `mapstructure:"data_bits"`
	StopBits     int           `mapstructure:"stop_bits"`
	Parity       string        `mapstructure:"parity"`
	ResetSettle  time.Duration `mapstructure:"reset_settle"`
	ReadySettle  time.Duration `mapstructure:"ready_settle"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SocketConfig represents TCP configuration
type SocketConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive"`
	BufferSize     int           `mapstructure:"buffer_size"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MotionConfig represents the stepper axes
type MotionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PulseWidthMs int           `mapstructure:"pulse_width_ms"`
	PauseWidthMs int           `mapstructure:"pause_width_ms"`
	Axes         []AxisConfig  `mapstructure:"axes"`
}

// AxisConfig represents one axis. Widths of zero inherit the motion
// section defaults.
type AxisConfig struct {
	Name          string  `mapstructure:"name"`
	Channel       int     `mapstructure:"channel"`
	StepPin       int     `mapstructure:"step_pin"`
	DirPin        int     `mapstructure:"dir_pin"`
	PulsesPerUnit float64 `mapstructure:"pulses_per_unit"`
	Unit          string  `mapstructure:"unit"`
	SoftMin       float64 `mapstructure:"soft_min"`
	SoftMax       float64 `mapstructure:"soft_max"`
	StartPosition float64 `mapstructure:"start_position"`
	PulseWidthMs  int     `mapstructure:"pulse_width_ms"`
	PauseWidthMs  int     `mapstructure:"pause_width_ms"`
}

// DiscoveryConfig represents the port scanners
type DiscoveryConfig struct {
	Serial      bool          `mapstructure:"serial"`
	TCPHosts    []string      `mapstructure:"tcp_hosts"`
	TCPPort     int           `mapstructure:"tcp_port"`
	TCPTimeout  time.Duration `mapstructure:"tcp_timeout"`
	TCPParallel int           `mapstructure:"tcp_parallel"`
}

// MetricsConfig represents prometheus export
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// NewViper returns a viper instance with defaults and environment
// overrides installed. Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/device-rpc")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load reads configuration into a Config. An explicit path must exist; when
// path is empty the search paths are tried and a missing file leaves the
// defaults in place.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	serial := transport.DefaultSerialConfig()
	socket := transport.DefaultSocketConfig()

	// App defaults
	v.SetDefault("app.name", "device-rpc")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Transport defaults
	v.SetDefault("transport.mode", "serial")
	v.SetDefault("transport.timeout", "2s")
	v.SetDefault("transport.connect_retries", 3)
	v.SetDefault("transport.retry_delay", "2s")
	v.SetDefault("transport.auto_connect", false)

	v.SetDefault("transport.serial.port", serial.Port)
	v.SetDefault("transport.serial.baud_rate", serial.BaudRate)
	v.SetDefault("transport.serial.data_bits", serial.DataBits)
	v.SetDefault("transport.serial.stop_bits", serial.StopBits)
	v.SetDefault("transport.serial.parity", serial.Parity)
	v.SetDefault("transport.serial.reset_settle", serial.ResetSettle.String())
	v.SetDefault("transport.serial.ready_settle", serial.ReadySettle.String())
	v.SetDefault("transport.serial.poll_interval", serial.PollInterval.String())

	v.SetDefault("transport.socket.host", socket.Host)
	v.SetDefault("transport.socket.port", socket.Port)
	v.SetDefault("transport.socket.connect_timeout", socket.ConnectTimeout.String())
	v.SetDefault("transport.socket.keep_alive", socket.KeepAlive)
	v.SetDefault("transport.socket.buffer_size", socket.BufferSize)
	v.SetDefault("transport.socket.poll_interval", socket.PollInterval.String())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Motion defaults
	v.SetDefault("motion.poll_interval", motion.DefaultPollInterval.String())
	v.SetDefault("motion.pulse_width_ms", 2)
	v.SetDefault("motion.pause_width_ms", 2)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "device_rpc")

	// Discovery defaults
	v.SetDefault("discovery.serial", true)
	v.SetDefault("discovery.tcp_port", socket.Port)
	v.SetDefault("discovery.tcp_timeout", "500ms")
	v.SetDefault("discovery.tcp_parallel", 8)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Transport.Timeout <= 0 {
		return fmt.Errorf("transport.timeout must be positive")
	}
	if config.Transport.ConnectRetries < 1 {
		return fmt.Errorf("transport.connect_retries must be at least 1")
	}
	if err := transport.Validate(config.Transport.TransportConfig()); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	for _, axis := range config.Motion.AxisConfigs() {
		if err := axis.Validate(); err != nil {
			return fmt.Errorf("motion: %w", err)
		}
	}

	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// TransportConfig converts the section into transport settings
func (t TransportConfig) TransportConfig() transport.Config {
	return transport.Config{
		Mode: t.Mode,
		Serial: transport.SerialConfig{
			Port:         t.Serial.Port,
			BaudRate:     t.Serial.BaudRate,
			DataBits:     t.Serial.DataBits,
			StopBits:     t.Serial.StopBits,
			Parity:       t.Serial.Parity,
			ResetSettle:  t.Serial.ResetSettle,
			ReadySettle:  t.Serial.ReadySettle,
			PollInterval: t.Serial.PollInterval,
		},
		Socket: transport.SocketConfig{
			Host:           t.Socket.Host,
			Port:           t.Socket.Port,
			ConnectTimeout: t.Socket.ConnectTimeout,
			KeepAlive:      t.Socket.KeepAlive,
			BufferSize:     t.Socket.BufferSize,
			PollInterval:   t.Socket.PollInterval,
		},
	}
}

// AxisConfigs converts the axes into motion settings
func (m MotionConfig) AxisConfigs() []motion.AxisConfig {
	out := make([]motion.AxisConfig, 0, len(m.Axes))
	for _, a := range m.Axes {
		pulseWidth, pauseWidth := a.PulseWidthMs, a.PauseWidthMs
		if pulseWidth == 0 {
			pulseWidth = m.PulseWidthMs
		}
		if pauseWidth == 0 {
			pauseWidth = m.PauseWidthMs
		}
		unit := a.Unit
		if unit == "" {
			unit = "mm"
		}
		out = append(out, motion.AxisConfig{
			Name:          a.Name,
			Channel:       a.Channel,
			StepPin:       a.StepPin,
			DirPin:        a.DirPin,
			PulsesPerUnit: decimal.NewFromFloat(a.PulsesPerUnit),
			Unit:          unit,
			SoftMin:       decimal.NewFromFloat(a.SoftMin),
			SoftMax:       decimal.NewFromFloat(a.SoftMax),
			StartPosition: decimal.NewFromFloat(a.StartPosition),
			PulseWidthMs:  pulseWidth,
			PauseWidthMs:  pauseWidth,
		})
	}
	return out
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == "development"
}
