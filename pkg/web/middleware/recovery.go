package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/web"
)

// RecoveryConfig configures panic recovery
type RecoveryConfig struct {
	Logger core.Logger

	// StackTrace includes the stack in the log line
	StackTrace bool
}

// DefaultRecoveryConfig returns a default recovery configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger:     core.NewDefaultLogger(),
		StackTrace: true,
	}
}

// Recovery turns a handler panic into a 500 response
func Recovery(config RecoveryConfig) web.FastMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					fields := map[string]interface{}{
						"request_id": ctx.RequestID(),
						"path":       string(ctx.Path()),
					}
					if config.StackTrace {
						fields["stack"] = string(debug.Stack())
					}
					logger.WithFields(fields).Error(fmt.Sprintf("panic recovered: %v", r))
					err = web.NewHTTPError(fasthttp.StatusInternalServerError, "internal server error")
				}
			}()
			return next(ctx)
		}
	}
}
