package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-rpc/internal/config"
	"device-rpc/internal/discovery"
	"device-rpc/internal/handler"
	"device-rpc/internal/metrics"
	"device-rpc/internal/middleware"
	"device-rpc/internal/service"
	"device-rpc/internal/transport"
	"device-rpc/internal/transport/transporttest"
)

func newRouter(t *testing.T, withMetrics bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := config.Load(nil, "")
	require.NoError(t, err)

	var m *metrics.Metrics
	opts := service.Options{
		Logger: zap.NewNop(),
		NewTransport: func(transport.Config, *zap.Logger) (transport.Transport, error) {
			return transporttest.NewFake(transporttest.Echo), nil
		},
	}
	if withMetrics {
		m = metrics.New(cfg.Metrics.Namespace)
		opts.Observer = m
	}
	ds, err := service.NewDeviceService(cfg, opts)
	require.NoError(t, err)

	bus := handler.NewEventBus(zap.NewNop())
	ws := handler.NewWebSocketHandler(bus, cfg.Server.AllowedOrigins, zap.NewNop())
	return NewRouter(cfg, zap.NewNop(), ds, discovery.NewManager(zap.NewNop()), ws, m).SetupRouter()
}

func TestRoutesRegistered(t *testing.T) {
	router := newRouter(t, true)

	registered := map[string]bool{}
	for _, route := range router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"GET /health",
		"GET /live",
		"GET /ready",
		"GET /metrics",
		"GET /api/v1/connection",
		"POST /api/v1/connection/connect",
		"POST /api/v1/connection/disconnect",
		"POST /api/v1/rpc/:method",
		"GET /api/v1/system",
		"PUT /api/v1/pins/:pin/mode",
		"GET /api/v1/pins/:pin/digital",
		"PUT /api/v1/pins/:pin/digital",
		"GET /api/v1/pins/:pin/analog",
		"PUT /api/v1/pwm/:channel",
		"PUT /api/v1/pwm/:channel/duty",
		"GET /api/v1/motion/axes",
		"POST /api/v1/motion/axes/:axis/move",
		"POST /api/v1/motion/axes/:axis/stop",
		"POST /api/v1/motion/estop",
		"GET /api/v1/discovery/ports",
		"GET /ws/events",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "device_rpc_device_connected")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestMetricsDisabled(t *testing.T) {
	router := newRouter(t, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
