package core

import (
	"context"
)

// FluxorContext represents the execution context for a verticle or handler.
//
// This is distinct from context.Context (Go's standard context):
//   - context.Context: Go's cancellation/deadline/value propagation
//   - FluxorContext: runtime context with access to the Vertx and EventBus
//
// Use Context() to get the underlying context.Context when needed for
// cancellation or passing to Go standard library functions.
type FluxorContext interface {
	// Context returns the underlying context.Context
	Context() context.Context

	// EventBus returns the event bus instance
	EventBus() EventBus

	// Vertx returns the owning runtime
	Vertx() Vertx
}

type fluxorContext struct {
	goCtx context.Context
	vertx Vertx
}

func newContext(goCtx context.Context, vertx Vertx) FluxorContext {
	if goCtx == nil {
		// Fail-fast: context cannot be nil
		panic("context cannot be nil")
	}
	return &fluxorContext{
		goCtx: goCtx,
		vertx: vertx,
	}
}

func (c *fluxorContext) Context() context.Context {
	return c.goCtx
}

func (c *fluxorContext) EventBus() EventBus {
	if c.vertx == nil {
		panic("vertx is nil, cannot get EventBus")
	}
	return c.vertx.EventBus()
}

func (c *fluxorContext) Vertx() Vertx {
	return c.vertx
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID extracts the request id from ctx, or "" when absent
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
