package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-rpc/internal/config"
	"device-rpc/internal/rpc"
	"device-rpc/internal/service"
	"device-rpc/internal/transport"
	"device-rpc/internal/transport/transporttest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// baseReplies covers what Connect needs to initialize the axes
var baseReplies = map[string]string{
	rpc.MethodPinMode:    `{"result":0}`,
	rpc.MethodPulseBegin: `{"result":0}`,
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := config.Load(nil, "")
	require.NoError(t, err)
	cfg.Transport.Timeout = 50 * time.Millisecond
	cfg.Transport.RetryDelay = time.Millisecond
	cfg.Motion.Axes = []config.AxisConfig{
		{Name: "X", Channel: 0, StepPin: 25, DirPin: 26, PulsesPerUnit: 100, SoftMin: 0, SoftMax: 100},
	}
	return cfg
}

// newService returns a service over a fake device answering replies on top
// of baseReplies. connect opens the session first.
func newService(t *testing.T, replies map[string]string, connect bool) (*service.DeviceService, *transporttest.Fake) {
	t.Helper()
	all := make(map[string]string, len(baseReplies)+len(replies))
	for k, v := range baseReplies {
		all[k] = v
	}
	for k, v := range replies {
		all[k] = v
	}

	fake := transporttest.NewFake(transporttest.Methods(all))
	ds, err := service.NewDeviceService(testConfig(t), service.Options{
		Logger: zap.NewNop(),
		NewTransport: func(transport.Config, *zap.Logger) (transport.Transport, error) {
			return fake, nil
		},
	})
	require.NoError(t, err)
	if connect {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		require.NoError(t, ds.Connect(ctx))
	}
	return ds, fake
}

func perform(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code   string `json:"code"`
		Result *int   `json:"result"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func lastSent(t *testing.T, fake *transporttest.Fake) string {
	t.Helper()
	sent := fake.Sent()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1]
}
