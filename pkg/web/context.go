package web

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/core"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// FastRequestContext wraps fasthttp RequestCtx with runtime context
type FastRequestContext struct {
	RequestCtx *fasthttp.RequestCtx
	Vertx      core.Vertx
	EventBus   core.EventBus
	Params     map[string]string

	ctx       context.Context
	route     string
	requestID string
	data      map[string]interface{}
	mu        sync.RWMutex
}

func newFastRequestContext(ctx *fasthttp.RequestCtx, vertx core.Vertx) *FastRequestContext {
	rc := &FastRequestContext{
		RequestCtx: ctx,
		Vertx:      vertx,
		Params:     make(map[string]string),
	}
	base := context.Background()
	if vertx != nil {
		rc.EventBus = vertx.EventBus()
		base = vertx.Context()
	}
	rc.ctx = core.WithRequestID(base, rc.RequestID())
	return rc
}

// RequestID returns the inbound X-Request-ID or a generated one
func (c *FastRequestContext) RequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requestID == "" {
		c.requestID = string(c.RequestCtx.Request.Header.Peek(RequestIDHeader))
		if c.requestID == "" {
			c.requestID = uuid.NewString()
		}
	}
	return c.requestID
}

// Context returns the request-scoped context.Context
func (c *FastRequestContext) Context() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx
}

// SetContext replaces the request-scoped context, e.g. with a span or deadline
func (c *FastRequestContext) SetContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

// Route returns the pattern of the matched route, or "" when none matched
func (c *FastRequestContext) Route() string {
	return c.route
}

// Set stores a value in the context
func (c *FastRequestContext) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]interface{})
	}
	c.data[key] = value
}

// Get retrieves a value from the context
func (c *FastRequestContext) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil {
		return nil
	}
	return c.data[key]
}

// JSON writes JSON response (default format) - fail-fast
func (c *FastRequestContext) JSON(statusCode int, data interface{}) error {
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}

	jsonData, err := core.JSONEncode(data)
	if err != nil {
		return fmt.Errorf("json encode error: %w", err)
	}

	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	c.RequestCtx.SetBody(jsonData)
	return nil
}

// BindJSON binds JSON request body to a struct - fail-fast
func (c *FastRequestContext) BindJSON(v interface{}) error {
	if v == nil {
		return fmt.Errorf("cannot bind to nil value")
	}

	body := c.RequestCtx.PostBody()
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}

	return core.JSONDecode(body, v)
}

// Text writes text response
func (c *FastRequestContext) Text(statusCode int, text string) error {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("text/plain; charset=utf-8")
	c.RequestCtx.SetBodyString(text)
	return nil
}

// NoContent writes an empty response
func (c *FastRequestContext) NoContent() error {
	c.RequestCtx.SetStatusCode(fasthttp.StatusNoContent)
	c.RequestCtx.ResetBody()
	return nil
}

// Query returns query parameter value
func (c *FastRequestContext) Query(key string) string {
	return string(c.RequestCtx.QueryArgs().Peek(key))
}

// Param returns path parameter value
func (c *FastRequestContext) Param(key string) string {
	return c.Params[key]
}

// Header returns a request header value
func (c *FastRequestContext) Header(key string) string {
	return string(c.RequestCtx.Request.Header.Peek(key))
}

// SetHeader sets a response header
func (c *FastRequestContext) SetHeader(key, value string) {
	c.RequestCtx.Response.Header.Set(key, value)
}

// Method returns HTTP method
func (c *FastRequestContext) Method() []byte {
	return c.RequestCtx.Method()
}

// Path returns request path
func (c *FastRequestContext) Path() []byte {
	return c.RequestCtx.Path()
}

// Error writes error response
func (c *FastRequestContext) Error(msg string, statusCode int) {
	c.RequestCtx.Error(msg, statusCode)
}
