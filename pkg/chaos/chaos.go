// Package chaos injects probabilistic failures into guarded operations.
//
// When enabled, each guarded operation draws once: with probability
// TriggerProbability a failure is injected, split evenly between a service
// error (the operation is aborted) and a high-latency warning (the operation
// proceeds). A service error may further escalate into a crash of the
// surrounding component.
package chaos

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/todochaos/pkg/logstore"
)

const (
	// TriggerProbability is the chance that a draw injects anything
	TriggerProbability = 0.4
	// ErrorSplit divides injected failures between ServiceError (below) and
	// HighLatency (at or above)
	ErrorSplit = 0.5
	// CrashSplit is the threshold a service error's second draw must exceed
	// to escalate into a crash
	CrashSplit = 0.5
	// RateLabel is the failure rate advertised to users
	RateLabel = "40%"

	MsgServiceError  = "System Failure Injection"
	MsgHighLatency   = "Chaos Monkey: High latency detected (>2000ms)"
	ServiceErrorText = "Chaos Monkey: Service unavailable (503)"
)

var (
	// ErrServiceUnavailable aborts a guarded operation without side effects
	ErrServiceUnavailable = errors.New("chaos monkey attack: operation failed")
	// ErrCriticalHit is the cause carried by an escalated crash
	ErrCriticalHit = errors.New("chaos monkey critical hit")

	errServiceError = errors.New(ServiceErrorText)
)

// Outcome is the result of a single draw
type Outcome int

const (
	None Outcome = iota
	ServiceError
	HighLatency
)

func (o Outcome) String() string {
	switch o {
	case ServiceError:
		return "service_error"
	case HighLatency:
		return "high_latency"
	default:
		return "none"
	}
}

// Source yields uniform values in [0, 1)
type Source interface {
	Float64() float64
}

// SourceFunc adapts a function to Source
type SourceFunc func() float64

// Float64 calls f
func (f SourceFunc) Float64() float64 { return f() }

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Observer is notified of every non-trivial outcome
type Observer func(Outcome)

// Decision tells a guarded operation how to proceed
type Decision struct {
	Outcome Outcome
	// Abort means the operation must not run
	Abort bool
	// Crash means the abort escalates into a component crash
	Crash bool
}

// Option configures an Injector
type Option func(*Injector)

// WithSource replaces the random source
func WithSource(src Source) Option {
	return func(i *Injector) {
		if src != nil {
			i.src = src
		}
	}
}

// WithLatencyDelay makes Guard actually wait on a HighLatency outcome
func WithLatencyDelay(d time.Duration) Option {
	return func(i *Injector) {
		i.latency = d
	}
}

// WithObserver registers an outcome observer
func WithObserver(obs Observer) Option {
	return func(i *Injector) {
		if obs != nil {
			i.observers = append(i.observers, obs)
		}
	}
}

// WithEnabled sets the initial toggle state
func WithEnabled(enabled bool) Option {
	return func(i *Injector) {
		i.enabled.Store(enabled)
	}
}

// Injector is the process-wide fault injector. The toggle may be flipped
// concurrently with draws.
type Injector struct {
	enabled   atomic.Bool
	log       logstore.Recorder
	latency   time.Duration
	observers []Observer

	mu  sync.Mutex // guards src
	src Source
}

// NewInjector creates a disabled injector logging to log
func NewInjector(log logstore.Recorder, opts ...Option) *Injector {
	if log == nil {
		log = logstore.Discard
	}
	i := &Injector{
		log: log,
		src: globalSource{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SetEnabled flips the toggle
func (i *Injector) SetEnabled(enabled bool) {
	i.enabled.Store(enabled)
}

// Enabled reports the toggle state
func (i *Injector) Enabled() bool {
	return i.enabled.Load()
}

// LatencyDelay returns the configured HighLatency wait
func (i *Injector) LatencyDelay() time.Duration {
	return i.latency
}

// TryInjectFailure performs one draw. A disabled injector returns None
// without consuming randomness or logging.
func (i *Injector) TryInjectFailure() Outcome {
	if !i.Enabled() {
		return None
	}
	if i.draw() >= TriggerProbability {
		return None
	}

	outcome := HighLatency
	if i.draw() < ErrorSplit {
		outcome = ServiceError
	}

	switch outcome {
	case ServiceError:
		i.log.Error(MsgServiceError, errServiceError)
	case HighLatency:
		i.log.Warn(MsgHighLatency, nil)
	}
	for _, obs := range i.observers {
		obs(outcome)
	}
	return outcome
}

// Guard draws for a guarded operation. A ServiceError aborts and draws an
// independent coin for crash escalation. HighLatency proceeds, after the
// configured delay if any; the returned error is non-nil only when ctx ends
// during that delay.
func (i *Injector) Guard(ctx context.Context) (Decision, error) {
	outcome := i.TryInjectFailure()
	d := Decision{Outcome: outcome}

	switch outcome {
	case ServiceError:
		d.Abort = true
		d.Crash = i.draw() > CrashSplit
	case HighLatency:
		if i.latency <= 0 {
			break
		}
		timer := time.NewTimer(i.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return d, ctx.Err()
		}
	}
	return d, nil
}

func (i *Injector) draw() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.src.Float64()
}
