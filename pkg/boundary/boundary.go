// Package boundary isolates crashes of a guarded component.
//
// A Boundary is Healthy until a guarded function panics or returns a Fault.
// It then turns Faulted, answers every call with a FallbackError and
// schedules a reset; when the reset fires the boundary is Healthy again.
// Catching another crash while Faulted replaces the pending reset, so at most
// one reset timer is live at any time.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/core/fsm"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

const (
	Healthy fsm.State = "healthy"
	Faulted fsm.State = "faulted"

	EventCrash fsm.Event = "crash"
	EventHeal  fsm.Event = "heal"

	// DefaultResetDelay is the time a boundary stays Faulted
	DefaultResetDelay = 3 * time.Second

	MsgCaught   = "UI Error Boundary Caught Error"
	MsgAutoHeal = "Auto-healing: System reset attempted"
)

// Observer is told about every state change
type Observer func(from, to fsm.State)

// Option configures a Boundary
type Option func(*Boundary)

// WithClock replaces the timer source
func WithClock(clock Clock) Option {
	return func(b *Boundary) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithResetDelay overrides DefaultResetDelay
func WithResetDelay(d time.Duration) Option {
	return func(b *Boundary) {
		if d > 0 {
			b.delay = d
		}
	}
}

// WithObserver registers a state observer
func WithObserver(obs Observer) Option {
	return func(b *Boundary) {
		if obs != nil {
			b.observers = append(b.observers, obs)
		}
	}
}

// WithLogger sets the process logger
func WithLogger(logger core.Logger) Option {
	return func(b *Boundary) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Boundary guards one component
type Boundary struct {
	name      string
	log       logstore.Recorder
	clock     Clock
	delay     time.Duration
	logger    core.Logger
	observers []Observer

	mu         sync.Mutex
	machine    *fsm.FSM
	timer      Timer
	generation uint64
	closed     bool
	lastErr    error
}

// New creates a Healthy boundary named name
func New(name string, log logstore.Recorder, opts ...Option) *Boundary {
	if log == nil {
		log = logstore.Discard
	}
	b := &Boundary{
		name:   name,
		log:    log,
		clock:  RealClock{},
		delay:  DefaultResetDelay,
		logger: core.NewDefaultLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.machine = fsm.NewFSM(Healthy).
		AddTransition(Healthy, EventCrash, Faulted).
		AddTransition(Faulted, EventCrash, Faulted).
		AddTransition(Faulted, EventHeal, Healthy).
		OnTransition(func(t fsm.Transition) {
			for _, obs := range b.observers {
				obs(t.From, t.To)
			}
		})
	return b
}

// Name returns the boundary name
func (b *Boundary) Name() string {
	return b.name
}

// State returns the current state
func (b *Boundary) State() fsm.State {
	return b.machine.Current()
}

// LastError returns the most recently caught error, nil once healed
func (b *Boundary) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Fallback describes the replacement content shown while Faulted
func (b *Boundary) Fallback() Fallback {
	return newFallback(b.delay)
}

// Do runs fn under the boundary. While Faulted fn is not run. A panic or a
// returned Fault is caught; both yield a FallbackError. Other errors are
// returned as-is.
func (b *Boundary) Do(ctx context.Context, fn func(context.Context) error) (err error) {
	if b.State() == Faulted {
		return &FallbackError{Fallback: b.Fallback(), Cause: b.LastError()}
	}

	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			b.Catch(cause)
			err = &FallbackError{Fallback: b.Fallback(), Cause: cause}
		}
	}()

	err = fn(ctx)
	var fault *Fault
	if errors.As(err, &fault) {
		cause := fault.Err
		if cause == nil {
			cause = fault
		}
		b.Catch(cause)
		return &FallbackError{Fallback: b.Fallback(), Cause: cause}
	}
	return err
}

// Catch records a crash, enters Faulted and (re)schedules the reset
func (b *Boundary) Catch(err error) {
	b.log.Error(MsgCaught, err)

	b.mu.Lock()
	if _, terr := b.machine.Trigger(EventCrash, err); terr != nil {
		b.logger.Error(fmt.Sprintf("boundary %s: %v", b.name, terr))
	}
	b.lastErr = err
	b.cancelLocked()
	if !b.closed {
		gen := b.generation
		b.timer = b.clock.AfterFunc(b.delay, func() { b.reset(gen) })
	}
	b.mu.Unlock()

	b.logger.WithFields(map[string]interface{}{
		"boundary": b.name,
		"retry_in": b.delay.String(),
	}).Warn("component crashed")
}

// Close cancels any pending reset. A reset that already started firing
// becomes a no-op.
func (b *Boundary) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cancelLocked()
}

// cancelLocked stops the pending timer and invalidates in-flight fires
func (b *Boundary) cancelLocked() {
	b.generation++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Boundary) reset(gen uint64) {
	b.mu.Lock()
	if b.closed || gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.lastErr = nil
	_, err := b.machine.Trigger(EventHeal, nil)
	b.mu.Unlock()

	if err != nil {
		b.logger.Error(fmt.Sprintf("boundary %s: %v", b.name, err))
		return
	}
	b.log.Info(MsgAutoHeal, nil)
}
