package web

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/worker"
)

// FastHTTPServer serves a FastRouter on fasthttp. Requests run on a bounded
// worker pool; when its queue is full the server answers 503 right away.
type FastHTTPServer struct {
	vertx  core.Vertx
	router *FastRouter
	server *fasthttp.Server
	pool   *worker.WorkerPool
	logger core.Logger
	addr   string

	mu       sync.RWMutex
	listener net.Listener

	maxQueue int
	workers  int
	// Metrics for monitoring
	inFlight         int64
	rejectedRequests int64
}

// FastHTTPServerConfig configures the fasthttp server
type FastHTTPServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr" validate:"required"`
	MaxQueue        int           `json:"maxQueue" yaml:"max_queue" validate:"gte=0"`
	Workers         int           `json:"workers" yaml:"workers" validate:"gt=0"`
	ReadTimeout     time.Duration `json:"readTimeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"writeTimeout" yaml:"write_timeout"`
	MaxConns        int           `json:"maxConns" yaml:"max_conns"`
	ReadBufferSize  int           `json:"readBufferSize" yaml:"read_buffer_size"`
	WriteBufferSize int           `json:"writeBufferSize" yaml:"write_buffer_size"`
}

// DefaultFastHTTPServerConfig returns default configuration
func DefaultFastHTTPServerConfig(addr string) *FastHTTPServerConfig {
	return &FastHTTPServerConfig{
		Addr:            addr,
		MaxQueue:        1024,
		Workers:         64,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxConns:        10000,
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
	}
}

// NewFastHTTPServer creates a server bound to vertx. It does not listen
// until Start or Serve.
func NewFastHTTPServer(vertx core.Vertx, config *FastHTTPServerConfig) *FastHTTPServer {
	core.FailFastIf(vertx == nil, "vertx cannot be nil")
	if config == nil {
		config = DefaultFastHTTPServerConfig(":8080")
	}
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}

	s := &FastHTTPServer{
		vertx:    vertx,
		router:   NewFastRouter(),
		addr:     config.Addr,
		pool:     worker.NewWorkerPool(workers, config.MaxQueue),
		logger:   core.NewDefaultLogger().WithFields(map[string]interface{}{"component": "http"}),
		maxQueue: config.MaxQueue,
		workers:  workers,
		server: &fasthttp.Server{
			ReadTimeout:           config.ReadTimeout,
			WriteTimeout:          config.WriteTimeout,
			MaxConnsPerIP:         config.MaxConns,
			ReadBufferSize:        config.ReadBufferSize,
			WriteBufferSize:       config.WriteBufferSize,
			NoDefaultServerHeader: true,
			ReduceMemoryUsage:     true,
		},
	}
	s.server.Handler = s.handleRequest
	s.pool.Start()
	return s
}

// Start listens on the configured address and serves until Stop
func (s *FastHTTPServer) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Listen binds the configured address without serving yet
func (s *FastHTTPServer) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return ln, nil
}

// Serve serves requests from ln until Stop
func (s *FastHTTPServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("http server listening on ", ln.Addr().String())
	return s.server.Serve(ln)
}

// Addr returns the bound address, or the configured one before Serve
func (s *FastHTTPServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop stops the fasthttp server gracefully
func (s *FastHTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	serving := s.listener != nil
	s.mu.RUnlock()

	var err error
	if serving {
		err = s.server.ShutdownWithContext(ctx)
	}
	s.pool.Stop(ctx)
	return err
}

// Router returns the router
func (s *FastHTTPServer) Router() *FastRouter {
	return s.router
}

// Handler exposes the request entry point without a listener
func (s *FastHTTPServer) Handler() fasthttp.RequestHandler {
	return s.handleRequest
}

// SetLogger replaces the server logger
func (s *FastHTTPServer) SetLogger(logger core.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Metrics returns current server metrics
func (s *FastHTTPServer) Metrics() ServerMetrics {
	return ServerMetrics{
		InFlight:         atomic.LoadInt64(&s.inFlight),
		RejectedRequests: atomic.LoadInt64(&s.rejectedRequests),
		QueueCapacity:    s.maxQueue,
		Workers:          s.workers,
	}
}

// ServerMetrics provides server performance metrics
type ServerMetrics struct {
	InFlight         int64 `json:"inFlight"`
	RejectedRequests int64 `json:"rejectedRequests"`
	QueueCapacity    int   `json:"queueCapacity"`
	Workers          int   `json:"workers"`
}

// handleRequest hands the request to a worker and waits for it. The
// RequestCtx is only valid until this function returns.
func (s *FastHTTPServer) handleRequest(ctx *fasthttp.RequestCtx) {
	atomic.AddInt64(&s.inFlight, 1)
	defer atomic.AddInt64(&s.inFlight, -1)

	done := make(chan struct{})
	err := s.pool.TrySubmit(func() {
		defer close(done)
		s.processRequest(ctx)
	})
	if err != nil {
		atomic.AddInt64(&s.rejectedRequests, 1)
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"queue_full","message":"Server overloaded - backpressure applied","code":"BACKPRESSURE"}`)
		return
	}
	<-done
}

// processRequest routes a single request with panic isolation
func (s *FastHTTPServer) processRequest(ctx *fasthttp.RequestCtx) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic: ", r)
			ctx.ResetBody()
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"handler_panic","message":"Request handler failed"}`)
		}
	}()

	s.router.ServeFastHTTP(newFastRequestContext(ctx, s.vertx))
}
