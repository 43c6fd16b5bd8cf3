// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Scanner finds endpoints a device may be reachable on
type Scanner interface {
	Scan(ctx context.Context) ([]Candidate, error)
	Type() string
}

// Candidate is one endpoint found by a scanner
type Candidate struct {
	Transport   string `json:"transport"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
	VID         string `json:"vid,omitempty"`
	PID         string `json:"pid,omitempty"`
	Serial      string `json:"serial_number,omitempty"`
	// Bridge names the USB-UART chip when the VID is a known board bridge
	Bridge string `json:"bridge,omitempty"`
	// Likely marks endpoints that look like one of the supported boards
	Likely bool `json:"likely"`
}

// ErrUnknownScanner is returned by ScanByType for unregistered types
var ErrUnknownScanner = errors.New("scanner type not found")

// Manager runs registered scanners
type Manager struct {
	scanners map[string]Scanner
	logger   *zap.Logger
}

// NewManager creates a scanner manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		scanners: make(map[string]Scanner),
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

// Register adds a scanner, replacing one of the same type
func (m *Manager) Register(scanner Scanner) {
	m.scanners[scanner.Type()] = scanner
	m.logger.Debug("Scanner registered", zap.String("type", scanner.Type()))
}

// Types lists registered scanner types
func (m *Manager) Types() []string {
	types := make([]string, 0, len(m.scanners))
	for t := range m.scanners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ScanAll runs every scanner. A failing scanner is logged and skipped.
// Likely candidates come first.
func (m *Manager) ScanAll(ctx context.Context) []Candidate {
	var all []Candidate
	for _, t := range m.Types() {
		found, err := m.scanners[t].Scan(ctx)
		if err != nil {
			m.logger.Error("Scanner failed", zap.String("type", t), zap.Error(err))
			continue
		}
		m.logger.Info("Scanner completed", zap.String("type", t), zap.Int("found", len(found)))
		all = append(all, found...)
	}
	Sort(all)
	return all
}

// ScanByType runs a single scanner
func (m *Manager) ScanByType(ctx context.Context, scannerType string) ([]Candidate, error) {
	scanner, ok := m.scanners[scannerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScanner, scannerType)
	}
	found, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	Sort(found)
	return found, nil
}

// Sort orders likely candidates first, then by address
func Sort(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Likely != candidates[j].Likely {
			return candidates[i].Likely
		}
		return candidates[i].Address < candidates[j].Address
	})
}
