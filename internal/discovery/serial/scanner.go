// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"device-rpc/internal/discovery"
)

// bridges maps USB vendor ids of the UART bridges found on the boards
var bridges = map[string]string{
	"10C4": "Silicon Labs CP210x",
	"1A86": "WCH CH340/CH9102",
	"0403": "FTDI",
	"303A": "Espressif USB JTAG/serial",
}

// BridgeName returns the bridge for vid, if it is a known one
func BridgeName(vid string) (string, bool) {
	name, ok := bridges[strings.ToUpper(vid)]
	return name, ok
}

type listFunc func() ([]*enumerator.PortDetails, error)

// Scanner lists local serial ports
type Scanner struct {
	list   listFunc
	logger *zap.Logger
}

// NewScanner creates a scanner backed by the OS port enumerator
func NewScanner(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		list:   enumerator.GetDetailedPortsList,
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// Type returns the scanner type
func (s *Scanner) Type() string {
	return "serial"
}

// Scan enumerates serial ports, tagging known USB-UART bridges as likely
func (s *Scanner) Scan(ctx context.Context) ([]discovery.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	candidates := make([]discovery.Candidate, 0, len(ports))
	for _, port := range ports {
		c := discovery.Candidate{
			Transport:   "serial",
			Address:     port.Name,
			Description: port.Product,
		}
		if port.IsUSB {
			c.VID = strings.ToUpper(port.VID)
			c.PID = strings.ToUpper(port.PID)
			c.Serial = port.SerialNumber
			if name, ok := BridgeName(port.VID); ok {
				c.Bridge = name
				c.Likely = true
			}
		}
		candidates = append(candidates, c)
	}

	discovery.Sort(candidates)
	s.logger.Debug("Serial ports listed", zap.Int("count", len(candidates)))
	return candidates, nil
}
