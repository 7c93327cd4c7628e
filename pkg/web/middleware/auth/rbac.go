package auth

import (
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/web"
)

// rolesOf reads the "roles" claim as either []string or []interface{}
func rolesOf(ctx *web.FastRequestContext) map[string]bool {
	roles := make(map[string]bool)
	switch v := ClaimsFrom(ctx)["roles"].(type) {
	case []string:
		for _, r := range v {
			roles[r] = true
		}
	case []interface{}:
		for _, r := range v {
			if s, ok := r.(string); ok {
				roles[s] = true
			}
		}
	}
	return roles
}

func requireRoles(match func(held map[string]bool) bool) web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			if ClaimsFrom(ctx) == nil {
				return web.NewHTTPError(fasthttp.StatusUnauthorized, "unauthenticated")
			}
			if !match(rolesOf(ctx)) {
				return web.NewHTTPError(fasthttp.StatusForbidden, "forbidden")
			}
			return next(ctx)
		}
	}
}

// RequireRole admits callers holding role
func RequireRole(role string) web.FastMiddleware {
	return RequireAnyRole(role)
}

// RequireAnyRole admits callers holding at least one of roles
func RequireAnyRole(roles ...string) web.FastMiddleware {
	return requireRoles(func(held map[string]bool) bool {
		for _, r := range roles {
			if held[r] {
				return true
			}
		}
		return false
	})
}

// RequireAllRoles admits callers holding every one of roles
func RequireAllRoles(roles ...string) web.FastMiddleware {
	return requireRoles(func(held map[string]bool) bool {
		for _, r := range roles {
			if !held[r] {
				return false
			}
		}
		return true
	})
}
