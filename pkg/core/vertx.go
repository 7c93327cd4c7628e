package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Vertx is the main entry point for the runtime: it owns the event bus and
// the lifecycle of deployed verticles
type Vertx interface {
	// EventBus returns the event bus
	EventBus() EventBus

	// DeployVerticle deploys a verticle
	DeployVerticle(verticle Verticle) (string, error)

	// UndeployVerticle undeploys a verticle
	UndeployVerticle(deploymentID string) error

	// Deployments returns the ids of the live deployments
	Deployments() []string

	// Close undeploys every verticle and closes the event bus
	Close() error

	// Context returns the root context
	Context() context.Context
}

// vertx implements Vertx
type vertx struct {
	eventBus    EventBus
	deployments map[string]*deployment
	order       []string
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewVertx creates a new Vertx instance
func NewVertx(ctx context.Context) Vertx {
	ctx, cancel := context.WithCancel(ctx)
	v := &vertx{
		deployments: make(map[string]*deployment),
		ctx:         ctx,
		cancel:      cancel,
	}
	v.eventBus = NewEventBus(ctx, v)
	return v
}

func (v *vertx) EventBus() EventBus {
	return v.eventBus
}

func (v *vertx) DeployVerticle(verticle Verticle) (string, error) {
	// Fail-fast: validate verticle immediately
	if err := ValidateVerticle(verticle); err != nil {
		return "", err
	}

	deploymentID := generateDeploymentID()
	ctx := newContext(v.ctx, v)

	// Fail-fast: start errors are propagated immediately
	if err := verticle.Start(ctx); err != nil {
		return "", fmt.Errorf("verticle start failed: %w", err)
	}

	v.mu.Lock()
	v.deployments[deploymentID] = &deployment{
		id:       deploymentID,
		verticle: verticle,
		ctx:      ctx,
	}
	v.order = append(v.order, deploymentID)
	v.mu.Unlock()

	return deploymentID, nil
}

func (v *vertx) UndeployVerticle(deploymentID string) error {
	if deploymentID == "" {
		return &Error{Code: "INVALID_DEPLOYMENT_ID", Message: "deployment ID cannot be empty"}
	}

	v.mu.Lock()
	dep, exists := v.deployments[deploymentID]
	if !exists {
		v.mu.Unlock()
		return &Error{Code: "NOT_FOUND", Message: "Deployment not found: " + deploymentID}
	}
	delete(v.deployments, deploymentID)
	for i, id := range v.order {
		if id == deploymentID {
			v.order = append(v.order[:i:i], v.order[i+1:]...)
			break
		}
	}
	v.mu.Unlock()

	if err := dep.verticle.Stop(dep.ctx); err != nil {
		return fmt.Errorf("verticle stop failed: %w", err)
	}
	return nil
}

func (v *vertx) Deployments() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.order...)
}

func (v *vertx) Close() error {
	// Undeploy in reverse deployment order
	ids := v.Deployments()
	var firstErr error
	for i := len(ids) - 1; i >= 0; i-- {
		if err := v.UndeployVerticle(ids[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	v.cancel()
	if err := v.eventBus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (v *vertx) Context() context.Context {
	return v.ctx
}

type deployment struct {
	id       string
	verticle Verticle
	ctx      FluxorContext
}

func generateDeploymentID() string {
	return fmt.Sprintf("deployment.%s", uuid.NewString())
}
