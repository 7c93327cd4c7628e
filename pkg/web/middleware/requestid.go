package middleware

import (
	"github.com/fluxorio/todochaos/pkg/web"
)

// RequestID echoes the request id on the response
func RequestID() web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			ctx.SetHeader(web.RequestIDHeader, ctx.RequestID())
			return next(ctx)
		}
	}
}
