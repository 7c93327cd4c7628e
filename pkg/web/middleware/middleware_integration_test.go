package middleware_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/todochaos/internal/testutil"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/web"
	"github.com/fluxorio/todochaos/pkg/web/middleware"
	"github.com/fluxorio/todochaos/pkg/web/middleware/security"
)

func newServer(t *testing.T) *web.FastHTTPServer {
	t.Helper()
	vertx := core.NewVertx(context.Background())
	s := web.NewFastHTTPServer(vertx, web.DefaultFastHTTPServerConfig("127.0.0.1:0"))
	t.Cleanup(func() {
		_ = s.Stop()
		_ = vertx.Close()
	})
	return s
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoggingMiddleware(t *testing.T) {
	var out, errOut syncBuffer
	config := middleware.DefaultLoggingConfig()
	config.Logger = core.NewLogger(core.LoggerConfig{JSONOutput: true, Level: "INFO", Out: &out, ErrOut: &errOut})

	s := newServer(t)
	s.Router().Use(middleware.Logging(config))
	s.Router().GET("/api/todos", func(ctx *web.FastRequestContext) error {
		return ctx.JSON(200, []string{})
	})
	s.Router().GET("/health", func(ctx *web.FastRequestContext) error {
		return ctx.NoContent()
	})

	testutil.Do(s.Handler(), testutil.Request{URI: "/api/todos"})
	testutil.Do(s.Handler(), testutil.Request{URI: "/health"})
	testutil.Do(s.Handler(), testutil.Request{URI: "/missing"})

	assert.Contains(t, out.String(), "Request completed: GET /api/todos - 200")
	assert.NotContains(t, out.String(), "/health")
	assert.Contains(t, errOut.String(), "Request failed: GET /missing")
}

func TestRecoveryMiddleware(t *testing.T) {
	var errOut syncBuffer
	config := middleware.DefaultRecoveryConfig()
	config.Logger = core.NewLogger(core.LoggerConfig{Level: "INFO", Out: io.Discard, ErrOut: &errOut})

	s := newServer(t)
	s.Router().Use(middleware.Recovery(config))
	s.Router().GET("/boom", func(ctx *web.FastRequestContext) error {
		panic("kaboom")
	})

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/boom"})
	assert.Equal(t, 500, resp.StatusCode())
	assert.JSONEq(t, `{"error":"internal server error"}`, string(resp.Body()))
	assert.Contains(t, errOut.String(), "panic recovered: kaboom")
}

func TestCompressionMiddleware(t *testing.T) {
	config := middleware.DefaultCompressionConfig()
	config.MinSize = 10

	s := newServer(t)
	s.Router().Use(middleware.Compression(config))
	payload := strings.Repeat("todo ", 100)
	s.Router().GET("/big", func(ctx *web.FastRequestContext) error {
		return ctx.Text(200, payload)
	})

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/big", Headers: map[string]string{"Accept-Encoding": "gzip"}})
	require.Equal(t, "gzip", string(resp.Header.Peek("Content-Encoding")))
	zr, err := gzip.NewReader(bytes.NewReader(resp.Body()))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, string(plain))

	resp = testutil.Do(s.Handler(), testutil.Request{URI: "/big"})
	assert.Empty(t, resp.Header.Peek("Content-Encoding"))
	assert.Equal(t, payload, string(resp.Body()))
}

func TestTimeoutMiddleware(t *testing.T) {
	config := middleware.DefaultTimeoutConfig(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, config.Timeout)

	s := newServer(t)
	s.Router().Use(middleware.Timeout(config))
	s.Router().GET("/slow", func(ctx *web.FastRequestContext) error {
		<-ctx.Context().Done()
		return ctx.Context().Err()
	})

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/slow"})
	assert.Equal(t, 504, resp.StatusCode())
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newServer(t)
	s.Router().Use(middleware.RequestID())
	s.Router().GET("/x", func(ctx *web.FastRequestContext) error { return ctx.NoContent() })

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/x", Headers: map[string]string{web.RequestIDHeader: "abc"}})
	assert.Equal(t, "abc", string(resp.Header.Peek(web.RequestIDHeader)))
}

type observation struct {
	method, route string
	status        int
}

type recorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recorder) ObserveHTTP(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{method, route, status})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &recorder{}
	s := newServer(t)
	s.Router().Use(middleware.Metrics(rec))
	s.Router().DELETE("/api/todos/:id", func(ctx *web.FastRequestContext) error {
		return web.NewHTTPError(503, "unavailable")
	})

	testutil.Do(s.Handler(), testutil.Request{Method: "DELETE", URI: "/api/todos/1"})
	testutil.Do(s.Handler(), testutil.Request{URI: "/nowhere"})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []observation{
		{"DELETE", "/api/todos/:id", 503},
		{"GET", "unmatched", 404},
	}, rec.obs)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)
	cfg := security.DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"http://localhost:5173"}
	s.Router().Use(security.CORS(cfg))
	s.Router().POST("/api/todos", func(ctx *web.FastRequestContext) error { return ctx.NoContent() })

	resp := testutil.Do(s.Handler(), testutil.Request{
		Method: "OPTIONS",
		URI:    "/api/todos",
		Headers: map[string]string{
			"Origin":                        "http://localhost:5173",
			"Access-Control-Request-Method": "POST",
		},
	})
	assert.Equal(t, 204, resp.StatusCode())
	assert.Equal(t, "http://localhost:5173", string(resp.Header.Peek("Access-Control-Allow-Origin")))

	resp = testutil.Do(s.Handler(), testutil.Request{
		Method:  "POST",
		URI:     "/api/todos",
		Headers: map[string]string{"Origin": "http://evil.example"},
	})
	assert.Empty(t, resp.Header.Peek("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	s := newServer(t)
	s.Router().Use(security.Headers(security.DefaultHeadersConfig()))
	s.Router().GET("/x", func(ctx *web.FastRequestContext) error { return ctx.NoContent() })

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/x"})
	assert.Equal(t, "nosniff", string(resp.Header.Peek("X-Content-Type-Options")))
	assert.Equal(t, "DENY", string(resp.Header.Peek("X-Frame-Options")))
	assert.Equal(t, "no-store", string(resp.Header.Peek("Cache-Control")))
	assert.Empty(t, resp.Header.Peek("Strict-Transport-Security"))
}

func TestCORS_AnyOrigin(t *testing.T) {
	s := newServer(t)
	s.Router().Use(security.CORS(security.DefaultCORSConfig()))
	s.Router().GET("/x", func(ctx *web.FastRequestContext) error { return ctx.NoContent() })

	resp := testutil.Do(s.Handler(), testutil.Request{
		URI:     "/x",
		Headers: map[string]string{"Origin": "http://anywhere.example"},
	})
	assert.Equal(t, "*", string(resp.Header.Peek("Access-Control-Allow-Origin")))
	assert.Equal(t, "X-Request-ID", string(resp.Header.Peek("Access-Control-Expose-Headers")))
	assert.Empty(t, resp.Header.Peek("Access-Control-Allow-Methods"))

	cfg := security.DefaultCORSConfig()
	cfg.AllowCredentials = true
	s2 := newServer(t)
	s2.Router().Use(security.CORS(cfg))
	resp = testutil.Do(s2.Handler(), testutil.Request{
		Method: "OPTIONS",
		URI:    "/x",
		Headers: map[string]string{
			"Origin":                        "http://anywhere.example",
			"Access-Control-Request-Method": "GET",
		},
	})
	assert.Equal(t, 204, resp.StatusCode())
	assert.Equal(t, "http://anywhere.example", string(resp.Header.Peek("Access-Control-Allow-Origin")))
	assert.Equal(t, "true", string(resp.Header.Peek("Access-Control-Allow-Credentials")))
	assert.Equal(t, "600", string(resp.Header.Peek("Access-Control-Max-Age")))
	assert.Equal(t, "Origin", string(resp.Header.Peek("Vary")))
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	s := newServer(t)
	cfg := security.DefaultHeadersConfig()
	cfg.HSTSMaxAge = 24 * time.Hour
	cfg.HSTSIncludeSubdomains = true
	s.Router().Use(security.Headers(cfg))
	s.Router().GET("/x", func(ctx *web.FastRequestContext) error {
		ctx.SetHeader("Cache-Control", "max-age=60")
		return ctx.NoContent()
	})

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/x"})
	assert.Equal(t, "max-age=86400; includeSubDomains", string(resp.Header.Peek("Strict-Transport-Security")))
	assert.Equal(t, "max-age=60", string(resp.Header.Peek("Cache-Control")))
}
