package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the dashboard over net/http
type Server struct {
	view     *View
	gatherer prometheus.Gatherer
	logger   core.Logger
	mux      *http.ServeMux

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server over view. gatherer backs /metrics; nil skips
// the route.
func NewServer(view *View, gatherer prometheus.Gatherer, logger core.Logger) *Server {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	s := &Server{
		view:     view,
		gatherer: gatherer,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /dashboard/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /dashboard/logs", s.handleLogs)
	s.mux.HandleFunc("GET /dashboard/ws", s.handleWS)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	return s
}

// Handler exposes the routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Listen binds addr; Serve must follow
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks serving the bound listener
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.srv, s.listener
	s.mu.Unlock()
	if srv == nil {
		return errors.New("dashboard: Listen not called")
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Metrics())
}

type logsResponse struct {
	Entries []logstore.LogEntry `json:"entries"`
	Metrics Metrics             `json:"metrics"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecent
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, logsResponse{
		Entries: s.view.Recent(limit),
		Metrics: s.view.Metrics(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("dashboard websocket upgrade failed: ", err)
		return
	}

	send := make(chan Update, sendBuffer)
	done := make(chan struct{})
	cancel := s.view.Watch(func(u Update) {
		select {
		case send <- u:
		default: // slow client: drop, the next update carries fresh metrics
		}
	})
	defer cancel()

	go func() {
		defer close(done)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	if err := writeWS(ws, Update{Metrics: s.view.Metrics()}); err != nil {
		return
	}
	for {
		select {
		case u := <-send:
			if err := writeWS(ws, u); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeWS(ws *websocket.Conn, u Update) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(u)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
