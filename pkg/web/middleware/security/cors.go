package security

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/web"
)

// CORSConfig configures cross-origin access
type CORSConfig struct {
	// AllowedOrigins lists exact origins; "*" allows any
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	// AllowCredentials echoes the origin instead of "*"
	AllowCredentials bool
	// MaxAge caches preflight answers, in seconds
	MaxAge int
}

// DefaultCORSConfig allows any origin to call the API with a bearer token or
// API key
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	}
}

type corsPolicy struct {
	any      bool
	origins  map[string]struct{}
	methods  string
	headers  string
	exposed  string
	maxAge   string
	withCred bool
}

func newCORSPolicy(c CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:  make(map[string]struct{}, len(c.AllowedOrigins)),
		methods:  strings.Join(c.AllowedMethods, ", "),
		headers:  strings.Join(c.AllowedHeaders, ", "),
		exposed:  strings.Join(c.ExposedHeaders, ", "),
		withCred: c.AllowCredentials,
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			p.any = true
		}
		p.origins[o] = struct{}{}
	}
	if c.MaxAge > 0 {
		p.maxAge = strconv.Itoa(c.MaxAge)
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when origin is not allowed
func (p *corsPolicy) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if p.any {
		if p.withCred {
			return origin
		}
		return "*"
	}
	if _, ok := p.origins[origin]; ok {
		return origin
	}
	return ""
}

func (p *corsPolicy) apply(h *fasthttp.ResponseHeader, allowed string, preflight bool) {
	if allowed != "*" {
		h.Add("Vary", "Origin")
	}
	if allowed == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowed)
	if p.withCred {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.exposed != "" {
		h.Set("Access-Control-Expose-Headers", p.exposed)
	}
	if !preflight {
		return
	}
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}
}

// CORS answers preflight requests itself and decorates every other response
// from an allowed origin
func CORS(config CORSConfig) web.FastMiddleware {
	p := newCORSPolicy(config)
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			origin := string(ctx.RequestCtx.Request.Header.Peek("Origin"))
			preflight := ctx.RequestCtx.IsOptions() &&
				len(ctx.RequestCtx.Request.Header.Peek("Access-Control-Request-Method")) > 0

			if origin != "" || preflight {
				p.apply(&ctx.RequestCtx.Response.Header, p.allowOrigin(origin), preflight)
			}
			if preflight {
				return ctx.NoContent()
			}
			return next(ctx)
		}
	}
}
