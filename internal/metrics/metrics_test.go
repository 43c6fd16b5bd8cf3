package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-rpc/internal/rpc"
)

func TestObserveCall(t *testing.T) {
	m := New("test")

	m.ObserveCall("millis", rpc.OK, 5*time.Millisecond)
	m.ObserveCall("millis", rpc.OK, 7*time.Millisecond)
	m.ObserveCall("millis", rpc.Timeout, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("millis", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("millis", "3")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.callDuration))
}

func TestGauges(t *testing.T) {
	m := New("")

	m.ActiveChannels(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeChannels))

	m.SetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	m.ObserveCall("chipID", rpc.OK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_rpc_calls_total{method="chipID",result="0"} 1`)
	assert.Contains(t, rec.Body.String(), "test_tracker_active_channels")
}
