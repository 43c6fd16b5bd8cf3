// internal/transport/factory.go
package transport

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// supportedBaudRates lists the rates the board UART bridges handle reliably
var supportedBaudRates = []int{9600, 19200, 38400, 57600, 74880, 115200, 230400, 460800, 921600}

// ParseKind maps a configured mode name to a transport kind
func ParseKind(mode string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "serial", "usb", "":
		return KindSerial, nil
	case "socket", "tcp", "wifi":
		return KindSocket, nil
	default:
		return "", fmt.Errorf("unknown transport mode: %q", mode)
	}
}

// New creates the transport selected by config.Mode
func New(config Config, logger *zap.Logger) (Transport, error) {
	if err := Validate(config); err != nil {
		return nil, err
	}

	kind, _ := ParseKind(config.Mode)
	switch kind {
	case KindSocket:
		logger.Info("Creating socket transport",
			zap.String("host", config.Socket.Host),
			zap.Int("port", config.Socket.Port),
		)
		return NewSocketTransport(config.Socket, logger), nil
	default:
		logger.Info("Creating serial transport",
			zap.String("port", config.Serial.Port),
			zap.Int("baud_rate", config.Serial.BaudRate),
		)
		return NewSerialTransport(config.Serial, logger), nil
	}
}

// Validate checks the settings of the selected mode
func Validate(config Config) error {
	kind, err := ParseKind(config.Mode)
	if err != nil {
		return err
	}

	switch kind {
	case KindSocket:
		return validateSocketConfig(config.Socket)
	default:
		return validateSerialConfig(config.Serial)
	}
}

func validateSerialConfig(config SerialConfig) error {
	if config.Port == "" {
		return fmt.Errorf("serial port is required")
	}

	if config.BaudRate != 0 {
		valid := false
		for _, rate := range supportedBaudRates {
			if config.BaudRate == rate {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid baud rate: %d", config.BaudRate)
		}
	}

	if config.ResetSettle < 0 || config.ReadySettle < 0 {
		return fmt.Errorf("serial settle periods must not be negative")
	}

	return nil
}

func validateSocketConfig(config SocketConfig) error {
	if config.Host == "" {
		return fmt.Errorf("socket host is required")
	}
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}
	return nil
}
