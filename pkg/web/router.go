package web

import (
	"errors"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
)

// FastRequestHandler handles one request
type FastRequestHandler func(ctx *FastRequestContext) error

// FastMiddleware wraps a handler
type FastMiddleware func(next FastRequestHandler) FastRequestHandler

// ErrorHandler renders an error a handler returned
type ErrorHandler func(ctx *FastRequestContext, err error)

// HTTPError carries an explicit status for the default error handler. Body,
// when set, is written instead of {"error": Message}.
type HTTPError struct {
	Status  int
	Message string
	Body    interface{}
	Err     error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates an HTTPError
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

type route struct {
	method   string
	pattern  string
	segments []string
	handler  FastRequestHandler
}

// match reports whether path fits the route and fills params
func (r *route) match(path string, params map[string]string) bool {
	parts := splitPath(path)
	if len(parts) != len(r.segments) {
		return false
	}
	for i, seg := range r.segments {
		if strings.HasPrefix(seg, ":") {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if seg != parts[i] {
			return false
		}
	}
	for i, seg := range r.segments {
		if strings.HasPrefix(seg, ":") {
			params[seg[1:]] = parts[i]
		}
	}
	return true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// FastRouter matches method and path patterns such as /api/todos/:id.
// Middleware added with Use wraps every request, including unmatched ones.
type FastRouter struct {
	mu           sync.RWMutex
	routes       []*route
	middleware   []FastMiddleware
	errorHandler ErrorHandler
	notFound     FastRequestHandler
}

// NewFastRouter creates an empty router
func NewFastRouter() *FastRouter {
	return &FastRouter{
		errorHandler: DefaultErrorHandler,
		notFound: func(ctx *FastRequestContext) error {
			return NewHTTPError(fasthttp.StatusNotFound, "not found")
		},
	}
}

// Use appends middleware
func (r *FastRouter) Use(mw ...FastMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// SetErrorHandler replaces the error renderer
func (r *FastRouter) SetErrorHandler(h ErrorHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorHandler = h
}

// Handle registers a handler for method and pattern
func (r *FastRouter) Handle(method, pattern string, handler FastRequestHandler, mw ...FastMiddleware) {
	if handler == nil {
		panic("handler cannot be nil")
	}
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, &route{
		method:   strings.ToUpper(method),
		pattern:  pattern,
		segments: splitPath(pattern),
		handler:  handler,
	})
}

// GET registers a GET route
func (r *FastRouter) GET(pattern string, handler FastRequestHandler, mw ...FastMiddleware) {
	r.Handle(fasthttp.MethodGet, pattern, handler, mw...)
}

// POST registers a POST route
func (r *FastRouter) POST(pattern string, handler FastRequestHandler, mw ...FastMiddleware) {
	r.Handle(fasthttp.MethodPost, pattern, handler, mw...)
}

// PUT registers a PUT route
func (r *FastRouter) PUT(pattern string, handler FastRequestHandler, mw ...FastMiddleware) {
	r.Handle(fasthttp.MethodPut, pattern, handler, mw...)
}

// DELETE registers a DELETE route
func (r *FastRouter) DELETE(pattern string, handler FastRequestHandler, mw ...FastMiddleware) {
	r.Handle(fasthttp.MethodDelete, pattern, handler, mw...)
}

// ServeFastHTTP dispatches ctx
func (r *FastRouter) ServeFastHTTP(ctx *FastRequestContext) {
	r.mu.RLock()
	handler, allowed := r.lookup(ctx)
	chain := r.middleware
	errorHandler := r.errorHandler
	r.mu.RUnlock()

	if handler == nil {
		if len(allowed) > 0 {
			allow := strings.Join(allowed, ", ")
			handler = func(ctx *FastRequestContext) error {
				ctx.SetHeader("Allow", allow)
				return NewHTTPError(fasthttp.StatusMethodNotAllowed, "method not allowed")
			}
		} else {
			handler = r.notFound
		}
	}
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	if err := handler(ctx); err != nil {
		errorHandler(ctx, err)
	}
}

// lookup finds the handler for ctx; on a path match with the wrong method it
// returns the methods that would have matched
func (r *FastRouter) lookup(ctx *FastRequestContext) (FastRequestHandler, []string) {
	method := string(ctx.Method())
	path := string(ctx.Path())
	var allowed []string
	for _, rt := range r.routes {
		params := make(map[string]string)
		if !rt.match(path, params) {
			continue
		}
		if rt.method != method {
			allowed = append(allowed, rt.method)
			continue
		}
		ctx.Params = params
		ctx.route = rt.pattern
		return rt.handler, nil
	}
	return nil, allowed
}

// StatusOf returns the status of an HTTPError, or 500 for anything else
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return fasthttp.StatusInternalServerError
}

// DefaultErrorHandler writes {"error": message} with the HTTPError status.
// Other errors become a bare 500 so internals do not leak.
func DefaultErrorHandler(ctx *FastRequestContext, err error) {
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Body != nil {
			_ = ctx.JSON(he.Status, he.Body)
			return
		}
		_ = ctx.JSON(he.Status, map[string]string{"error": he.Message})
		return
	}
	status := fasthttp.StatusInternalServerError
	_ = ctx.JSON(status, map[string]string{"error": fasthttp.StatusMessage(status)})
}
