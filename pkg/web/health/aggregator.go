package health

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/web"
)

// Aggregator serves registry results over HTTP
type Aggregator struct {
	registry *Registry
	now      func() time.Time
}

// NewAggregator creates a new health check aggregator
func NewAggregator(registry *Registry) *Aggregator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Aggregator{registry: registry, now: time.Now}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HandleHealth answers /health from liveness checks
func (a *Aggregator) HandleHealth(ctx *web.FastRequestContext) error {
	return a.respond(ctx, Liveness)
}

// HandleReady answers /ready from every check; 503 when any fails
func (a *Aggregator) HandleReady(ctx *web.FastRequestContext) error {
	return a.respond(ctx, Readiness)
}

func (a *Aggregator) respond(ctx *web.FastRequestContext, scope Scope) error {
	status, results := a.Status(ctx.Context(), scope)

	statusCode := fasthttp.StatusOK
	if status == StatusDown {
		statusCode = fasthttp.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Checks:    results,
		RequestID: ctx.RequestID(),
	})
}

// Status runs the checks for scope without an HTTP response
func (a *Aggregator) Status(ctx context.Context, scope Scope) (Status, map[string]CheckResult) {
	results := a.registry.Check(ctx, scope)
	return Overall(results), results
}
