// Package health runs named checks for the /health and /ready endpoints.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout bounds a single check
const DefaultTimeout = 5 * time.Second

// Checker is a health check function
type Checker func(ctx context.Context) error

// Error is a check failure with a message safe to show callers
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Scope selects which endpoint runs a check
type Scope int

const (
	// Liveness checks run on /health and /ready
	Liveness Scope = iota
	// Readiness checks run only on /ready
	Readiness
)

// NamedChecker is a health check with a name
type NamedChecker struct {
	Name    string
	Checker Checker
	Timeout time.Duration
	Scope   Scope
}

// Registry manages health checks
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]*NamedChecker
}

// NewRegistry creates a new health check registry
func NewRegistry() *Registry {
	return &Registry{
		checkers: make(map[string]*NamedChecker),
	}
}

// Register registers a liveness check
func (r *Registry) Register(name string, checker Checker) {
	r.Add(NamedChecker{Name: name, Checker: checker, Timeout: DefaultTimeout})
}

// RegisterWithTimeout registers a liveness check with a timeout
func (r *Registry) RegisterWithTimeout(name string, checker Checker, timeout time.Duration) {
	r.Add(NamedChecker{Name: name, Checker: checker, Timeout: timeout})
}

// RegisterReadiness registers a check that only gates /ready
func (r *Registry) RegisterReadiness(name string, checker Checker) {
	r.Add(NamedChecker{Name: name, Checker: checker, Timeout: DefaultTimeout, Scope: Readiness})
}

// Add registers c, replacing any check with the same name
func (r *Registry) Add(c NamedChecker) {
	if c.Checker == nil {
		panic("health checker cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[c.Name] = &c
}

// Unregister removes a health check
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
}

// Names returns the registered check names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every check up to scope concurrently
func (r *Registry) Check(ctx context.Context, scope Scope) map[string]CheckResult {
	r.mu.RLock()
	checkers := make([]*NamedChecker, 0, len(r.checkers))
	for _, c := range r.checkers {
		if c.Scope <= scope {
			checkers = append(checkers, c)
		}
	}
	r.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, checker := range checkers {
		wg.Add(1)
		go func(checker *NamedChecker) {
			defer wg.Done()

			result := runCheck(ctx, checker)
			mu.Lock()
			results[checker.Name] = result
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// runCheck runs a single health check with timeout
func runCheck(ctx context.Context, checker *NamedChecker) (result CheckResult) {
	timeout := checker.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{Status: StatusDown, Message: "check panicked"}
		}
		result.DurationMS = time.Since(start).Milliseconds()
	}()

	if err := checker.Checker(checkCtx); err != nil {
		return CheckResult{Status: StatusDown, Message: err.Error()}
	}
	return CheckResult{Status: StatusUp, Message: "OK"}
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Status represents health check status
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Overall is DOWN when any result is DOWN
func Overall(results map[string]CheckResult) Status {
	for _, result := range results {
		if result.Status == StatusDown {
			return StatusDown
		}
	}
	return StatusUp
}
