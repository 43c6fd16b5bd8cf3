// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"device-rpc/internal/discovery"
)

// Config for the TCP probe
type Config struct {
	Hosts       []string      `json:"hosts"`
	Port        int           `json:"port"`
	ConnTimeout time.Duration `json:"connection_timeout"`
	// Parallel bounds concurrent dials
	Parallel int `json:"parallel"`
}

// Scanner checks which configured hosts accept connections on the device port
type Scanner struct {
	config Config
	dialer net.Dialer
	logger *zap.Logger
}

// NewScanner creates a TCP probe
func NewScanner(config Config, logger *zap.Logger) *Scanner {
	if config.ConnTimeout <= 0 {
		config.ConnTimeout = 2 * time.Second
	}
	if config.Parallel <= 0 {
		config.Parallel = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		config: config,
		dialer: net.Dialer{Timeout: config.ConnTimeout},
		logger: logger.With(zap.String("scanner", "tcp")),
	}
}

// Type returns the scanner type
func (s *Scanner) Type() string {
	return "tcp"
}

// Scan dials every host; reachable ones are reported as likely candidates.
// Unreachable hosts are not errors.
func (s *Scanner) Scan(ctx context.Context) ([]discovery.Candidate, error) {
	var (
		mutex sync.Mutex
		found []discovery.Candidate
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallel)

	port := strconv.Itoa(s.config.Port)
	for _, host := range s.config.Hosts {
		address := net.JoinHostPort(host, port)
		g.Go(func() error {
			conn, err := s.dialer.DialContext(ctx, "tcp", address)
			if err != nil {
				s.logger.Debug("Host not reachable", zap.String("address", address), zap.Error(err))
				return nil
			}
			conn.Close()

			mutex.Lock()
			found = append(found, discovery.Candidate{
				Transport:   "socket",
				Address:     address,
				Description: "accepts connections on device port",
				Likely:      true,
			})
			mutex.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	discovery.Sort(found)
	s.logger.Info("TCP probe completed", zap.Int("reachable", len(found)), zap.Int("probed", len(s.config.Hosts)))
	return found, nil
}
