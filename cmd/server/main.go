// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"device-rpc/internal/config"
	"device-rpc/internal/discovery"
	"device-rpc/internal/discovery/serial"
	"device-rpc/internal/discovery/tcp"
	"device-rpc/internal/handler"
	"device-rpc/internal/metrics"
	"device-rpc/internal/routes"
	"device-rpc/internal/service"
	"device-rpc/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	eventBus      *handler.EventBus
	websocket     *handler.WebSocketHandler
	metrics       *metrics.Metrics
	deviceService *service.DeviceService
	discovery     *discovery.Manager
}

func main() {
	app, err := NewApplication(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		app.logger.Error("Application stopped with error", zap.Error(err))
		utils.CloseLogger(app.logger)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance. An empty configPath
// searches the default locations.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(nil, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	utils.NewServiceLogger(logger, "device-rpc").LogServiceStart(cfg.App.Version,
		zap.String("environment", cfg.App.Environment),
		zap.String("transport", cfg.Transport.Mode),
		zap.Int("axes", len(cfg.Motion.Axes)),
	)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initializeDiscovery()
	app.initializeServer()

	return app, nil
}

// initializeServices creates the event bus, metrics and device session
func (app *Application) initializeServices() error {
	app.eventBus = handler.NewEventBus(app.logger)
	app.websocket = handler.NewWebSocketHandler(app.eventBus, app.config.Server.AllowedOrigins, app.logger)

	opts := service.Options{
		Logger:    app.logger,
		Publisher: app.eventBus,
	}
	if app.config.Metrics.Enabled {
		app.metrics = metrics.New(app.config.Metrics.Namespace)
		opts.Observer = app.metrics
	}

	deviceService, err := service.NewDeviceService(app.config, opts)
	if err != nil {
		return err
	}
	app.deviceService = deviceService

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeDiscovery registers the configured port scanners
func (app *Application) initializeDiscovery() {
	app.discovery = discovery.NewManager(app.logger)
	if app.config.Discovery.Serial {
		app.discovery.Register(serial.NewScanner(app.logger))
	}
	if len(app.config.Discovery.TCPHosts) > 0 {
		app.discovery.Register(tcp.NewScanner(tcp.Config{
			Hosts:       app.config.Discovery.TCPHosts,
			Port:        app.config.Discovery.TCPPort,
			ConnTimeout: app.config.Discovery.TCPTimeout,
			Parallel:    app.config.Discovery.TCPParallel,
		}, app.logger))
	}
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	router := routes.NewRouter(
		app.config,
		app.logger,
		app.deviceService,
		app.discovery,
		app.websocket,
		app.metrics,
	).SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.server.Addr))
}

// Start runs the HTTP server and the background loops until ctx is done or
// one of them fails, then shuts everything down.
func (app *Application) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.eventBus.Start(gctx)
		return nil
	})

	g.Go(func() error {
		app.websocket.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return app.deviceService.Motion().Run(gctx, app.config.Motion.PollInterval)
	})

	if app.config.Transport.AutoConnect {
		g.Go(func() error {
			if err := app.deviceService.Connect(gctx); err != nil {
				app.logger.Warn("Auto-connect failed; use POST /api/v1/connection/connect to retry", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		app.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	utils.NewServiceLogger(app.logger, "device-rpc").LogServiceStop("context canceled")

	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.deviceService.Status().Connected {
		if err := app.deviceService.Motion().EmergencyStop(ctx); err != nil {
			app.logger.Error("Failed to stop axes on shutdown", zap.Error(err))
		}
	}
	if err := app.deviceService.Disconnect(); err != nil {
		app.logger.Error("Device disconnect error", zap.Error(err))
	}

	app.logger.Info("Application shutdown completed")
	utils.CloseLogger(app.logger)
}
