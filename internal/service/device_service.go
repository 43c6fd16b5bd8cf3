// internal/service/device_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"device-rpc/internal/config"
	"device-rpc/internal/model"
	"device-rpc/internal/motion"
	"device-rpc/internal/rpc"
	"device-rpc/internal/tracker"
	"device-rpc/internal/transport"
	"device-rpc/internal/utils"
)

// Observer receives call, tracker and link metrics
type Observer interface {
	rpc.Observer
	tracker.Observer
	SetConnected(connected bool)
}

// TransportFactory builds the device link
type TransportFactory func(config transport.Config, logger *zap.Logger) (transport.Transport, error)

// Options carries the collaborators of a DeviceService
type Options struct {
	Logger       *zap.Logger
	Publisher    model.Publisher
	Observer     Observer
	NewTransport TransportFactory
}

// Status describes the device session
type Status struct {
	Mode           transport.Kind `json:"mode"`
	Address        string         `json:"address"`
	Connected      bool           `json:"connected"`
	ConnectedSince *time.Time     `json:"connected_since,omitempty"`
	Timeout        time.Duration  `json:"timeout"`
	Axes           int            `json:"axes"`
}

// SystemInfo bundles the system queries
type SystemInfo struct {
	Millis   int64  `json:"millis"`
	FreeHeap int64  `json:"free_heap"`
	ChipID   uint64 `json:"chip_id"`
	ChipHex  string `json:"chip_id_hex"`
}

// DeviceService owns the single device session of the process
type DeviceService struct {
	config    *config.Config
	transport transport.Transport
	client    *rpc.Client
	motion    *motion.Controller
	publisher model.Publisher
	observer  Observer
	logger    *utils.ServiceLogger

	mutex          sync.Mutex
	connectedSince time.Time
}

// NewDeviceService builds the transport, client and motion controller from
// cfg. Nothing is opened until Connect.
func NewDeviceService(cfg *config.Config, opts Options) (*DeviceService, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = model.Discard{}
	}
	if opts.NewTransport == nil {
		opts.NewTransport = transport.New
	}

	link, err := opts.NewTransport(cfg.Transport.TransportConfig(), opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	clientOpts := rpc.Options{Timeout: cfg.Transport.Timeout, Logger: opts.Logger}
	if opts.Observer != nil {
		clientOpts.Observer = opts.Observer
	}
	client := rpc.NewClient(link, clientOpts)

	controller, err := motion.NewController(client, cfg.Motion.AxisConfigs(), opts.Publisher, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create motion controller: %w", err)
	}
	if opts.Observer != nil {
		controller.Tracker().SetObserver(opts.Observer)
	}

	return &DeviceService{
		config:    cfg,
		transport: link,
		client:    client,
		motion:    controller,
		publisher: opts.Publisher,
		observer:  opts.Observer,
		logger:    utils.NewServiceLogger(opts.Logger, "device-service"),
	}, nil
}

// Connect opens the link, retrying as configured, then aborts moves left
// from a lost link and initializes the motion axes. A failed axis init
// closes the link again.
func (ds *DeviceService) Connect(ctx context.Context) error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if ds.client.IsConnected() {
		return nil
	}

	attempts := ds.config.Transport.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			return ds.client.Connect(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(ds.config.Transport.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.OnRetry(func(n uint, err error) {
			ds.logger.Warn("Connect attempt failed",
				zap.Uint("attempt", n+1),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		ds.publish(model.EventConnectionFailed, map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to connect to %s: %w", ds.transport.Address(), err)
	}

	// moves from a previous session did not survive the reconnect
	ds.motion.Abort()
	if err := ds.motion.Init(ctx); err != nil {
		ds.client.Disconnect()
		ds.publish(model.EventConnectionFailed, map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to initialize motion axes: %w", err)
	}

	ds.connectedSince = time.Now().UTC()
	if ds.observer != nil {
		ds.observer.SetConnected(true)
	}
	ds.logger.Info("Device session opened",
		zap.String("mode", string(ds.transport.Kind())),
		zap.String("address", ds.transport.Address()),
	)
	ds.publish(model.EventConnectionOpened, nil)
	return nil
}

// Disconnect closes the link and aborts running moves. Calling it on a
// closed session is a no-op.
func (ds *DeviceService) Disconnect() error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	wasConnected := ds.client.IsConnected()
	if err := ds.client.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	ds.connectedSince = time.Time{}
	ds.motion.Abort()
	if ds.observer != nil {
		ds.observer.SetConnected(false)
	}
	if wasConnected {
		ds.logger.Info("Device session closed")
		ds.publish(model.EventConnectionClosed, nil)
	}
	return nil
}

// Status reports the session state
func (ds *DeviceService) Status() Status {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	st := Status{
		Mode:      ds.transport.Kind(),
		Address:   ds.transport.Address(),
		Connected: ds.client.IsConnected(),
		Timeout:   ds.client.Timeout(),
		Axes:      len(ds.motion.Axes()),
	}
	if st.Connected && !ds.connectedSince.IsZero() {
		since := ds.connectedSince
		st.ConnectedSince = &since
	}
	return st
}

// Info runs the three system queries and stops at the first failure
func (ds *DeviceService) Info(ctx context.Context) (SystemInfo, rpc.Status) {
	var info SystemInfo

	millis, st := ds.client.GetMillis(ctx)
	if !st.OK() {
		return info, st
	}
	heap, st := ds.client.GetFreeMem(ctx)
	if !st.OK() {
		return info, st
	}
	chip, st := ds.client.GetChipID(ctx)
	if !st.OK() {
		return info, st
	}

	info = SystemInfo{
		Millis:   millis,
		FreeHeap: heap,
		ChipID:   chip,
		ChipHex:  fmt.Sprintf("%012X", chip),
	}
	return info, st
}

// Client returns the rpc client
func (ds *DeviceService) Client() *rpc.Client {
	return ds.client
}

// Motion returns the motion controller
func (ds *DeviceService) Motion() *motion.Controller {
	return ds.motion
}

// Config returns the configuration the service was built from
func (ds *DeviceService) Config() *config.Config {
	return ds.config
}

func (ds *DeviceService) publish(eventType model.EventType, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["mode"] = string(ds.transport.Kind())
	data["address"] = ds.transport.Address()
	ds.publisher.Publish(model.NewEvent(eventType, "device-service", data))
}
