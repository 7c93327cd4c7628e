// Package auth holds request authentication middleware: bearer tokens for
// signed-in users and API keys with roles for operator endpoints.
package auth

import (
	"errors"
	"strings"

	"github.com/valyala/fasthttp"

	authn "github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/logstore"
	"github.com/fluxorio/todochaos/pkg/web"
)

const (
	userKey   = "auth.user"
	tokenKey  = "auth.token"
	claimsKey = "auth.claims"
)

// Verifier turns a bearer token into a user
type Verifier interface {
	Verify(token string) (*authn.User, error)
}

// JWTConfig configures bearer token authentication
type JWTConfig struct {
	// SecretKey signs HS256 tokens; used when Verifier is nil
	SecretKey string

	// Verifier checks tokens, including revocation
	Verifier Verifier

	// Optional lets requests without a token through with no user
	Optional bool
}

// DefaultJWTConfig returns a config verifying tokens signed with secretKey
func DefaultJWTConfig(secretKey string) JWTConfig {
	return JWTConfig{SecretKey: secretKey}
}

// JWT authenticates the bearer token and stores the user on the request
func JWT(config JWTConfig) web.FastMiddleware {
	verifier := config.Verifier
	if verifier == nil {
		a, err := authn.New(authn.DefaultConfig(config.SecretKey), logstore.Discard)
		if err != nil {
			panic("jwt middleware: " + err.Error())
		}
		verifier = a
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			token, ok := BearerToken(ctx)
			if !ok {
				if config.Optional {
					return next(ctx)
				}
				return web.NewHTTPError(fasthttp.StatusUnauthorized, "missing bearer token")
			}

			user, err := verifier.Verify(token)
			if err != nil {
				if config.Optional && errors.Is(err, authn.ErrInvalidToken) {
					return next(ctx)
				}
				return web.NewHTTPError(fasthttp.StatusUnauthorized, "invalid token")
			}

			ctx.Set(userKey, user)
			ctx.Set(tokenKey, token)
			return next(ctx)
		}
	}
}

// BearerToken extracts the token from the Authorization header
func BearerToken(ctx *web.FastRequestContext) (string, bool) {
	h := ctx.Header(fasthttp.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

// UserFrom returns the authenticated user, or nil
func UserFrom(ctx *web.FastRequestContext) *authn.User {
	u, _ := ctx.Get(userKey).(*authn.User)
	return u
}

// TokenFrom returns the verified bearer token, or ""
func TokenFrom(ctx *web.FastRequestContext) string {
	t, _ := ctx.Get(tokenKey).(string)
	return t
}
