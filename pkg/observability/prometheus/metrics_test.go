package prometheus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

func TestChaosObserver(t *testing.T) {
	m := NewMetrics()
	obs := m.ChaosObserver()
	obs(chaos.ServiceError)
	obs(chaos.ServiceError)
	obs(chaos.HighLatency)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChaosOutcomes.WithLabelValues("service_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChaosOutcomes.WithLabelValues("high_latency")))
}

func TestBoundaryObserver(t *testing.T) {
	m := NewMetrics()
	obs := m.BoundaryObserver("todo-list")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BoundaryFaulted.WithLabelValues("todo-list")))

	obs(boundary.Healthy, boundary.Faulted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BoundaryFaulted.WithLabelValues("todo-list")))

	obs(boundary.Faulted, boundary.Healthy)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BoundaryFaulted.WithLabelValues("todo-list")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BoundaryTransitions.WithLabelValues("todo-list", "faulted")))
}

func TestObserveHTTP(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("POST", "/api/todos", 201, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/todos", "201")))
}

func TestLogCollector(t *testing.T) {
	vertx := core.NewVertx(context.Background())
	defer vertx.Close()
	store := logstore.NewStore(vertx.EventBus())
	store.Info("ok", map[string]any{"uid": "a"})
	store.Warn("slow", nil)
	store.Error("bad", errors.New("x"))
	store.Info("ok", map[string]any{"uid": "b"})

	m := NewMetrics()
	m.RegisterLogs(store)

	expected := `
# HELP todochaos_logs_entries Retained log entries by level.
# TYPE todochaos_logs_entries gauge
todochaos_logs_entries{level="ERROR"} 1
todochaos_logs_entries{level="INFO"} 2
todochaos_logs_entries{level="WARN"} 1
# HELP todochaos_logs_error_rate_percent Share of retained entries at ERROR level.
# TYPE todochaos_logs_error_rate_percent gauge
todochaos_logs_error_rate_percent 25
# HELP todochaos_system_healthy 1 when no retained entry is an ERROR.
# TYPE todochaos_system_healthy gauge
todochaos_system_healthy 0
# HELP todochaos_logs_active_users Distinct users referenced by retained entries.
# TYPE todochaos_logs_active_users gauge
todochaos_logs_active_users 2
`
	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"todochaos_logs_entries",
		"todochaos_logs_error_rate_percent",
		"todochaos_system_healthy",
		"todochaos_logs_active_users",
	)
	assert.NoError(t, err)
}

func TestHandlers(t *testing.T) {
	m := NewMetrics()
	m.ChaosObserver()(chaos.HighLatency)

	ts := httptest.NewServer(Handler(m.Registry))
	defer ts.Close()
	res, err := http.Get(ts.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Contains(t, string(body), `todochaos_chaos_outcomes_total{outcome="high_latency"} 1`)

	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/metrics")
	FastHTTPHandler(m.Registry)(&ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "todochaos_chaos_outcomes_total")
}
