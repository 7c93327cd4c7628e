package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/web"
)

// APIKeyHeader carries operator keys
const APIKeyHeader = "X-API-Key"

// ErrUnknownAPIKey is returned by validators for keys they do not know
var ErrUnknownAPIKey = errors.New("unknown api key")

// APIKeyValidator resolves a key to its claims
type APIKeyValidator func(key string) (map[string]interface{}, error)

// SimpleAPIKeyValidator validates against a fixed key table. Keys are
// compared in constant time.
func SimpleAPIKeyValidator(keys map[string]map[string]interface{}) APIKeyValidator {
	return func(key string) (map[string]interface{}, error) {
		for k, claims := range keys {
			if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
				return claims, nil
			}
		}
		return nil, ErrUnknownAPIKey
	}
}

// APIKey authenticates the X-API-Key header and stores its claims
func APIKey(validator APIKeyValidator) web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			key := ctx.Header(APIKeyHeader)
			if key == "" {
				return web.NewHTTPError(fasthttp.StatusUnauthorized, "missing api key")
			}
			claims, err := validator(key)
			if err != nil {
				return web.NewHTTPError(fasthttp.StatusUnauthorized, "invalid api key")
			}
			ctx.Set(claimsKey, claims)
			return next(ctx)
		}
	}
}

// ClaimsFrom returns the claims stored by APIKey, or nil
func ClaimsFrom(ctx *web.FastRequestContext) map[string]interface{} {
	c, _ := ctx.Get(claimsKey).(map[string]interface{})
	return c
}
