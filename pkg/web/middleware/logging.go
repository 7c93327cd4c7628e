package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/web"
)

// LoggingConfig configures request logging middleware
type LoggingConfig struct {
	// Logger is the logger to use (default: core.NewDefaultLogger())
	Logger core.Logger

	// LogRequestID includes request ID in logs
	LogRequestID bool

	// SkipPaths is a list of path prefixes to skip logging
	SkipPaths []string
}

// DefaultLoggingConfig returns a default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Logger:       core.NewDefaultLogger(),
		LogRequestID: true,
		SkipPaths:    []string{"/health", "/ready", "/metrics"},
	}
}

func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Logging middleware logs one line per completed request
func Logging(config LoggingConfig) web.FastMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			path := string(ctx.Path())
			if skipped(path, config.SkipPaths) {
				return next(ctx)
			}

			start := time.Now()
			method := string(ctx.Method())

			err := next(ctx)

			duration := time.Since(start)
			statusCode := ctx.RequestCtx.Response.StatusCode()

			fields := map[string]interface{}{
				"method":      method,
				"path":        path,
				"route":       ctx.Route(),
				"status":      statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": ctx.RequestCtx.RemoteIP().String(),
			}
			if config.LogRequestID {
				fields["request_id"] = ctx.RequestID()
			}

			switch {
			case err != nil:
				fields["error"] = err.Error()
				logger.WithFields(fields).Error(fmt.Sprintf("Request failed: %s %s - %v", method, path, err))
			case statusCode >= 500:
				logger.WithFields(fields).Error(fmt.Sprintf("Request error: %s %s - %d", method, path, statusCode))
			case statusCode >= 400:
				logger.WithFields(fields).Warn(fmt.Sprintf("Request rejected: %s %s - %d", method, path, statusCode))
			default:
				logger.WithFields(fields).Info(fmt.Sprintf("Request completed: %s %s - %d", method, path, statusCode))
			}

			return err
		}
	}
}
