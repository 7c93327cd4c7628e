// Package app assembles the service from its configuration: the log store and
// its sinks, the fault injector, the crash boundary, the task service and the
// two HTTP surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	authn "github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/config"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/dashboard"
	"github.com/fluxorio/todochaos/pkg/docstore"
	"github.com/fluxorio/todochaos/pkg/logstore"
	obsotel "github.com/fluxorio/todochaos/pkg/observability/otel"
	obsprom "github.com/fluxorio/todochaos/pkg/observability/prometheus"
	"github.com/fluxorio/todochaos/pkg/tasks"
	"github.com/fluxorio/todochaos/pkg/web"
	"github.com/fluxorio/todochaos/pkg/web/api"
	"github.com/fluxorio/todochaos/pkg/web/health"
	"github.com/fluxorio/todochaos/pkg/web/middleware/security"
	"github.com/fluxorio/todochaos/pkg/worker"
)

// BoundaryName names the boundary around the task list
const BoundaryName = "todo-list"

// App owns every long-lived component of a running service
type App struct {
	mu     sync.Mutex
	cfg    *config.AppConfig
	logger core.Logger
	vertx  core.Vertx

	pool     *worker.WorkerPool
	nats     *logstore.NATSSink
	logs     *logstore.Store
	metrics  *obsprom.Metrics
	docs     docstore.Store
	injector *chaos.Injector
	boundary *boundary.Boundary
	auth     *authn.Authenticator
	tasks    *tasks.Service
	health   *health.Registry

	api       *web.FastHTTPVerticle
	dashboard *dashboard.Verticle
	stopAuth  func()
	tracing   bool
}

// New builds the components described by cfg without serving anything
func New(ctx context.Context, cfg *config.AppConfig, logger core.Logger) (a *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = core.NewLogger(core.LoggerConfig{JSONOutput: cfg.Logging.JSON, Level: cfg.Logging.Level})
	}

	applied := *cfg
	a = &App{
		cfg:    &applied,
		logger: logger,
		vertx:  core.NewVertx(ctx),
		pool:   worker.NewWorkerPool(2, 256),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()
	a.pool.Start()

	if tracingEnabled(cfg.Tracing) {
		if err := obsotel.Initialize(ctx, cfg.Tracing); err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		a.tracing = true
	}

	sinks := []logstore.Sink{}
	if cfg.Logging.Console {
		sinks = append(sinks, logstore.NewConsoleSink(os.Stdout, os.Stderr))
	}
	if cfg.Logging.NATS.URL != "" {
		a.nats, err = logstore.NewNATSSink(cfg.Logging.NATS.URL, cfg.Logging.NATS.Subject, nats.Name("todochaos"))
		if err != nil {
			return nil, fmt.Errorf("log forwarding: %w", err)
		}
		sinks = append(sinks, a.nats)
	}
	a.logs = logstore.NewStore(a.vertx.EventBus(),
		logstore.WithSinks(sinks...),
		logstore.WithPool(a.pool),
		logstore.WithCapacity(cfg.Logging.Capacity),
	)

	a.metrics = obsprom.NewMetrics()
	a.metrics.RegisterLogs(a.logs)

	a.docs, err = docstore.Open(ctx, cfg.Docstore.Driver, cfg.Docstore.DSN)
	if err != nil {
		return nil, fmt.Errorf("docstore: %w", err)
	}

	a.injector = chaos.NewInjector(a.logs,
		chaos.WithEnabled(cfg.Chaos.Enabled),
		chaos.WithLatencyDelay(cfg.Chaos.LatencyDelay),
		chaos.WithObserver(a.metrics.ChaosObserver()),
	)
	a.boundary = boundary.New(BoundaryName, a.logs,
		boundary.WithResetDelay(cfg.Boundary.ResetDelay),
		boundary.WithObserver(a.metrics.BoundaryObserver(BoundaryName)),
		boundary.WithLogger(logger),
	)

	authCfg := authn.DefaultConfig(cfg.Auth.Secret)
	if cfg.Auth.Issuer != "" {
		authCfg.Issuer = cfg.Auth.Issuer
	}
	if cfg.Auth.TTL > 0 {
		authCfg.TTL = cfg.Auth.TTL
	}
	if cfg.Auth.LoginRate > 0 {
		authCfg.LoginRate = cfg.Auth.LoginRate
		authCfg.LoginBurst = cfg.Auth.LoginBurst
	}
	authCfg.Accounts = cfg.Auth.Accounts
	a.auth, err = authn.New(authCfg, a.logs,
		authn.WithPublisher(obsotel.NewTracedPublisher(a.vertx.Context(), a.vertx.EventBus())))
	if err != nil {
		return nil, err
	}

	a.tasks = tasks.NewService(a.docs, a.injector, a.logs, cfg.Features)
	a.stopAuth = a.tasks.WatchAuth(a.vertx.EventBus())

	a.health = health.NewRegistry()
	a.health.RegisterReadiness("docstore", health.PingCheck("docstore", a.docs))
	a.health.RegisterReadiness(BoundaryName, health.BoundaryCheck(a.boundary))

	var cors *security.CORSConfig
	if len(cfg.Server.CORSOrigins) > 0 {
		c := security.DefaultCORSConfig()
		c.AllowedOrigins = cfg.Server.CORSOrigins
		cors = &c
	}
	routes, err := api.New(api.Deps{
		Auth:           a.auth,
		Tasks:          a.tasks,
		Injector:       a.injector,
		Boundary:       a.boundary,
		Health:         a.health,
		Metrics:        a.metrics,
		MetricsHandler: obsprom.FastHTTPHandler(a.metrics.Registry),
		APIKeys:        cfg.APIKeyClaims(),
		CORS:           cors,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	serverCfg := cfg.Server.FastHTTPServerConfig
	a.api = api.NewVerticle(&serverCfg, routes)

	if cfg.Dashboard.Enabled {
		a.dashboard = dashboard.NewVerticle(cfg.Dashboard.Addr, a.logs, a.metrics.Registry)
	}
	return a, nil
}

func tracingEnabled(cfg obsotel.Config) bool {
	return cfg.Exporter != "" && cfg.Exporter != obsotel.ExporterNone
}

// Start deploys the dashboard and then the API
func (a *App) Start() error {
	if a.dashboard != nil {
		if _, err := a.vertx.DeployVerticle(a.dashboard); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		a.health.RegisterReadiness("dashboard",
			health.HTTPCheck("http://"+dialAddr(a.dashboard.Addr())+"/dashboard/metrics", 2*time.Second))
	}
	if _, err := a.vertx.DeployVerticle(a.api); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	a.logger.Info("todochaos serving api on ", a.api.Addr())
	return nil
}

// dialAddr turns a wildcard listen address into one a client can dial
func dialAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "127.0.0.1" + addr
	}
	if len(addr) > 5 && addr[:5] == "[::]:" {
		return "127.0.0.1:" + addr[5:]
	}
	return addr
}

// Reload applies the settings that can change without a restart. A value is
// applied only when the file changed it, so runtime toggles survive unrelated edits.
func (a *App) Reload(cfg *config.AppConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.cfg
	if cfg.Features != prev.Features {
		a.tasks.SetFeatures(cfg.Features)
		a.logger.WithFields(map[string]interface{}{
			"showTimestamp": cfg.Features.ShowTimestamp,
			"enableDelete":  cfg.Features.EnableDelete,
		}).Info("feature flags reloaded")
	}
	if cfg.Chaos.Enabled != prev.Chaos.Enabled {
		a.injector.SetEnabled(cfg.Chaos.Enabled)
		a.logger.Info("chaos injection enabled=", cfg.Chaos.Enabled)
	}
	applied := *cfg
	a.cfg = &applied
}

// APIAddr returns the API listen address once started
func (a *App) APIAddr() string {
	return a.api.Addr()
}

// DashboardAddr returns the dashboard listen address, empty when disabled
func (a *App) DashboardAddr() string {
	if a.dashboard == nil {
		return ""
	}
	return a.dashboard.Addr()
}

// Logs returns the log store
func (a *App) Logs() *logstore.Store {
	return a.logs
}

// Tasks returns the task service
func (a *App) Tasks() *tasks.Service {
	return a.tasks
}

// Injector returns the fault injector
func (a *App) Injector() *chaos.Injector {
	return a.injector
}

// Close stops serving and releases everything New acquired, in reverse order
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.stopAuth != nil {
		a.stopAuth()
	}
	if a.vertx != nil {
		errs = append(errs, a.vertx.Close())
	}
	if a.tasks != nil {
		a.tasks.Close()
	}
	if a.boundary != nil {
		a.boundary.Close()
	}
	if a.docs != nil {
		errs = append(errs, a.docs.Close())
	}
	if a.pool != nil {
		a.pool.Stop(ctx)
	}
	if a.nats != nil {
		errs = append(errs, a.nats.Close())
	}
	if a.tracing {
		errs = append(errs, obsotel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
