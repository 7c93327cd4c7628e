package middleware

import (
	"time"

	"github.com/fluxorio/todochaos/pkg/web"
)

// HTTPObserver receives one observation per request
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// Metrics reports every request to obs, labelled by route pattern so path
// parameters do not explode cardinality
func Metrics(obs HTTPObserver) web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			start := time.Now()
			err := next(ctx)

			route := ctx.Route()
			if route == "" {
				route = "unmatched"
			}
			status := ctx.RequestCtx.Response.StatusCode()
			if err != nil {
				status = web.StatusOf(err)
			}
			obs.ObserveHTTP(string(ctx.Method()), route, status, time.Since(start))
			return err
		}
	}
}
