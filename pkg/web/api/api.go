// Package api wires the domain services onto HTTP routes: sign-in, the
// to-do list behind its crash boundary, chaos and feature toggles, and the
// health endpoints.
package api

import (
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	authn "github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/observability/otel"
	"github.com/fluxorio/todochaos/pkg/tasks"
	"github.com/fluxorio/todochaos/pkg/web"
	"github.com/fluxorio/todochaos/pkg/web/health"
	"github.com/fluxorio/todochaos/pkg/web/middleware"
	"github.com/fluxorio/todochaos/pkg/web/middleware/auth"
	"github.com/fluxorio/todochaos/pkg/web/middleware/security"
)

// OperatorRole gates the chaos and feature toggles when API keys are set
const OperatorRole = "operator"

// Deps are the collaborators the routes need
type Deps struct {
	Auth     *authn.Authenticator
	Tasks    *tasks.Service
	Injector *chaos.Injector
	Boundary *boundary.Boundary
	Health   *health.Registry

	// Metrics observes every request; optional
	Metrics middleware.HTTPObserver
	// MetricsHandler serves GET /metrics when set
	MetricsHandler fasthttp.RequestHandler
	// APIKeys protects operator routes; open when empty
	APIKeys map[string]map[string]interface{}
	// CORS overrides the default policy
	CORS *security.CORSConfig
	// RequestTimeout bounds handler contexts; zero disables it
	RequestTimeout time.Duration
	Logger         core.Logger
}

// API owns the route handlers
type API struct {
	deps   Deps
	health *health.Aggregator
	logger core.Logger
}

// New validates deps and creates the API
func New(deps Deps) (*API, error) {
	switch {
	case deps.Auth == nil:
		return nil, errors.New("api: authenticator is required")
	case deps.Tasks == nil:
		return nil, errors.New("api: task service is required")
	case deps.Injector == nil:
		return nil, errors.New("api: injector is required")
	case deps.Boundary == nil:
		return nil, errors.New("api: boundary is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &API{
		deps:   deps,
		health: health.NewAggregator(deps.Health),
		logger: logger.WithFields(map[string]interface{}{"component": "api"}),
	}, nil
}

// NewVerticle serves a on its own fasthttp verticle
func NewVerticle(config *web.FastHTTPServerConfig, a *API) *web.FastHTTPVerticle {
	return web.NewFastHTTPVerticle("api", config, a.Routes)
}

// Routes registers middleware and routes on r
func (a *API) Routes(r *web.FastRouter) {
	r.Use(
		middleware.Recovery(middleware.RecoveryConfig{Logger: a.logger, StackTrace: true}),
		middleware.RequestID(),
	)
	r.Use(otel.HTTPMiddleware())
	if a.deps.Metrics != nil {
		r.Use(middleware.Metrics(a.deps.Metrics))
	}
	cors := security.DefaultCORSConfig()
	if a.deps.CORS != nil {
		cors = *a.deps.CORS
	}
	r.Use(
		middleware.Logging(middleware.LoggingConfig{
			Logger:       a.logger,
			LogRequestID: true,
			SkipPaths:    []string{"/health", "/ready", "/metrics"},
		}),
		security.CORS(cors),
		security.Headers(security.DefaultHeadersConfig()),
		middleware.Compression(middleware.DefaultCompressionConfig()),
		middleware.Timeout(middleware.DefaultTimeoutConfig(a.deps.RequestTimeout)),
		mapErrors,
	)

	required := auth.JWT(auth.JWTConfig{Verifier: a.deps.Auth})
	optional := auth.JWT(auth.JWTConfig{Verifier: a.deps.Auth, Optional: true})

	r.POST("/auth/login", a.login)
	r.POST("/auth/logout", a.logout, required)
	r.GET("/auth/me", a.me, required)

	r.GET("/api/todos", a.listTodos, required)
	r.POST("/api/todos", a.createTodo, optional)
	r.DELETE("/api/todos/:id", a.deleteTodo, optional)

	operator := a.operatorOnly()
	r.GET("/api/chaos", a.getChaos)
	r.PUT("/api/chaos", a.putChaos, operator...)
	r.GET("/api/features", a.getFeatures)
	r.PUT("/api/features", a.putFeatures, operator...)
	r.GET("/api/boundary", a.getBoundary)

	r.GET("/health", a.health.HandleHealth)
	r.GET("/ready", a.health.HandleReady)
	if a.deps.MetricsHandler != nil {
		r.GET("/metrics", func(ctx *web.FastRequestContext) error {
			a.deps.MetricsHandler(ctx.RequestCtx)
			return nil
		})
	}
}

func (a *API) operatorOnly() []web.FastMiddleware {
	if len(a.deps.APIKeys) == 0 {
		return nil
	}
	return []web.FastMiddleware{
		auth.APIKey(auth.SimpleAPIKeyValidator(a.deps.APIKeys)),
		auth.RequireRole(OperatorRole),
	}
}
