package health

import (
	"context"

	"github.com/fluxorio/todochaos/pkg/boundary"
)

// Pinger is anything with a reachability probe, such as a docstore
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports p as down when its ping fails
func PingCheck(what string, p Pinger) Checker {
	return func(ctx context.Context) error {
		if p == nil {
			return &Error{Message: what + " is not configured"}
		}
		if err := p.Ping(ctx); err != nil {
			return &Error{Message: what + " ping failed: " + err.Error()}
		}
		return nil
	}
}

// BoundaryCheck is down while b shows its fallback
func BoundaryCheck(b *boundary.Boundary) Checker {
	return func(context.Context) error {
		if b.State() != boundary.Faulted {
			return nil
		}
		return &Error{Message: b.Name() + " is faulted: " + b.Fallback().Detail}
	}
}
