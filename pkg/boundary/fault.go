package boundary

import (
	"errors"
	"fmt"
	"time"
)

// Fault marks an error as a crash of the guarded component. Returning a
// Fault from a guarded function flips the boundary to Faulted; any other
// error passes through.
type Fault struct {
	Err error
}

// NewFault wraps err as a crash signal
func NewFault(err error) *Fault {
	return &Fault{Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return "component crashed"
	}
	return "component crashed: " + f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault reports whether err carries a Fault
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// Fallback is what a faulted component shows instead of its content
type Fallback struct {
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Detail  string        `json:"detail"`
	RetryIn time.Duration `json:"-"`
}

func newFallback(delay time.Duration) Fallback {
	return Fallback{
		Title:   "CRITICAL SYSTEM FAILURE",
		Message: "Chaos Monkey has crashed the UI component.",
		Detail:  fmt.Sprintf("System will reboot in %d seconds.", int(delay.Round(time.Second)/time.Second)),
		RetryIn: delay,
	}
}

// FallbackError is returned in place of the guarded result while the
// boundary is Faulted
type FallbackError struct {
	Fallback Fallback
	Cause    error
}

func (e *FallbackError) Error() string {
	if e.Cause == nil {
		return e.Fallback.Title
	}
	return e.Fallback.Title + ": " + e.Cause.Error()
}

func (e *FallbackError) Unwrap() error {
	return e.Cause
}
