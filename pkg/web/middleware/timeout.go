package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/web"
)

// TimeoutConfig configures the request deadline
type TimeoutConfig struct {
	Timeout time.Duration
}

// DefaultTimeoutConfig returns a configuration with the given deadline
func DefaultTimeoutConfig(timeout time.Duration) TimeoutConfig {
	return TimeoutConfig{Timeout: timeout}
}

// Timeout puts a deadline on the request context. Handlers that honor the
// context and return its error are answered with 504.
func Timeout(config TimeoutConfig) web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			if config.Timeout <= 0 {
				return next(ctx)
			}
			reqCtx, cancel := context.WithTimeout(ctx.Context(), config.Timeout)
			defer cancel()
			ctx.SetContext(reqCtx)

			err := next(ctx)
			if errors.Is(err, context.DeadlineExceeded) {
				return web.NewHTTPError(fasthttp.StatusGatewayTimeout, "request timed out")
			}
			return err
		}
	}
}
