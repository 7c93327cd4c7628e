// Package security holds response hardening middleware: CORS and the
// standard browser security headers.
package security

import (
	"strconv"
	"time"

	"github.com/fluxorio/todochaos/pkg/web"
)

// HeadersConfig selects the security headers set on every response. Empty
// fields are not sent.
type HeadersConfig struct {
	// HSTSMaxAge enables Strict-Transport-Security; only meaningful behind TLS
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool

	CSP               string
	FrameOptions      string
	NoSniff           bool
	ReferrerPolicy    string
	PermissionsPolicy string

	// Extra headers, set last
	Extra map[string]string
}

// DefaultHeadersConfig returns headers for a JSON API served over plain
// HTTP. Set HSTSMaxAge behind TLS.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:            "default-src 'none'; frame-ancestors 'none'",
		FrameOptions:   "DENY",
		NoSniff:        true,
		ReferrerPolicy: "no-referrer",
		Extra:          map[string]string{"Cache-Control": "no-store"},
	}
}

type header struct{ key, value string }

func (c HeadersConfig) headers() []header {
	var hs []header
	add := func(key, value string) {
		if value != "" {
			hs = append(hs, header{key, value})
		}
	}
	if c.HSTSMaxAge > 0 {
		hsts := "max-age=" + strconv.FormatInt(int64(c.HSTSMaxAge/time.Second), 10)
		if c.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		add("Strict-Transport-Security", hsts)
	}
	add("Content-Security-Policy", c.CSP)
	add("X-Frame-Options", c.FrameOptions)
	if c.NoSniff {
		add("X-Content-Type-Options", "nosniff")
	}
	add("Referrer-Policy", c.ReferrerPolicy)
	add("Permissions-Policy", c.PermissionsPolicy)
	for k, v := range c.Extra {
		add(k, v)
	}
	return hs
}

// Headers sets the configured headers before the handler runs, so a handler
// may still override any of them
func Headers(config HeadersConfig) web.FastMiddleware {
	hs := config.headers()
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			for _, h := range hs {
				ctx.RequestCtx.Response.Header.Set(h.key, h.value)
			}
			return next(ctx)
		}
	}
}
