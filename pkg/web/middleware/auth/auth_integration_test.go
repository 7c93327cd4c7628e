package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/todochaos/internal/testutil"
	authn "github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/logstore"
	"github.com/fluxorio/todochaos/pkg/web"
	"github.com/fluxorio/todochaos/pkg/web/middleware/auth"
)

const secret = "test-secret-key"

func newServer(t *testing.T) *web.FastHTTPServer {
	t.Helper()
	vertx := core.NewVertx(context.Background())
	s := web.NewFastHTTPServer(vertx, web.DefaultFastHTTPServerConfig("127.0.0.1:0"))
	t.Cleanup(func() {
		_ = s.Stop()
		_ = vertx.Close()
	})
	return s
}

func whoami(ctx *web.FastRequestContext) error {
	u := auth.UserFrom(ctx)
	if u == nil {
		return ctx.JSON(200, map[string]any{"user": nil})
	}
	return ctx.JSON(200, map[string]any{"user": u.DisplayName})
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestJWTMiddleware(t *testing.T) {
	a, err := authn.New(authn.DefaultConfig(secret), logstore.Discard)
	require.NoError(t, err)
	session, err := a.Login(context.Background(), authn.Credentials{Name: "Ada"})
	require.NoError(t, err)

	config := auth.DefaultJWTConfig(secret)
	assert.Equal(t, secret, config.SecretKey)
	config.Verifier = a

	s := newServer(t)
	s.Router().GET("/me", whoami, auth.JWT(config))

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/me", Headers: bearer(session.Token)})
	assert.Equal(t, 200, resp.StatusCode())
	assert.JSONEq(t, `{"user":"Ada"}`, string(resp.Body()))

	resp = testutil.Do(s.Handler(), testutil.Request{URI: "/me"})
	assert.Equal(t, 401, resp.StatusCode())

	_, err = a.Logout(session.Token)
	require.NoError(t, err)
	resp = testutil.Do(s.Handler(), testutil.Request{URI: "/me", Headers: bearer(session.Token)})
	assert.Equal(t, 401, resp.StatusCode())
}

func TestJWTMiddleware_SecretOnly(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, authn.Claims{
		Name: "Grace",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-1",
			Issuer:    "todochaos",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	s := newServer(t)
	s.Router().GET("/me", whoami, auth.JWT(auth.DefaultJWTConfig(secret)))

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/me", Headers: bearer(token)})
	assert.JSONEq(t, `{"user":"Grace"}`, string(resp.Body()))

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "uid-1", "iss": "todochaos", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	resp = testutil.Do(s.Handler(), testutil.Request{URI: "/me", Headers: bearer(forged)})
	assert.Equal(t, 401, resp.StatusCode())
}

func TestJWTMiddleware_Optional(t *testing.T) {
	config := auth.DefaultJWTConfig(secret)
	config.Optional = true

	s := newServer(t)
	s.Router().GET("/me", whoami, auth.JWT(config))

	resp := testutil.Do(s.Handler(), testutil.Request{URI: "/me"})
	assert.Equal(t, 200, resp.StatusCode())
	assert.JSONEq(t, `{"user":null}`, string(resp.Body()))

	resp = testutil.Do(s.Handler(), testutil.Request{URI: "/me", Headers: bearer("garbage")})
	assert.Equal(t, 200, resp.StatusCode())
}

func TestRBACMiddleware(t *testing.T) {
	validator := auth.SimpleAPIKeyValidator(map[string]map[string]interface{}{
		"ops-key":    {"roles": []string{"operator", "admin"}},
		"viewer-key": {"roles": []interface{}{"viewer"}},
	})

	s := newServer(t)
	ok := func(ctx *web.FastRequestContext) error { return ctx.NoContent() }
	s.Router().PUT("/admin", ok, auth.APIKey(validator), auth.RequireRole("admin"))
	s.Router().PUT("/any", ok, auth.APIKey(validator), auth.RequireAnyRole("admin", "viewer"))
	s.Router().PUT("/all", ok, auth.APIKey(validator), auth.RequireAllRoles("admin", "operator"))

	key := func(k string) map[string]string { return map[string]string{auth.APIKeyHeader: k} }
	cases := []struct {
		path, key string
		want      int
	}{
		{"/admin", "ops-key", 204},
		{"/admin", "viewer-key", 403},
		{"/admin", "", 401},
		{"/admin", "wrong", 401},
		{"/any", "viewer-key", 204},
		{"/all", "ops-key", 204},
		{"/all", "viewer-key", 403},
	}
	for _, tc := range cases {
		headers := key(tc.key)
		if tc.key == "" {
			headers = nil
		}
		resp := testutil.Do(s.Handler(), testutil.Request{Method: "PUT", URI: tc.path, Headers: headers})
		assert.Equal(t, tc.want, resp.StatusCode(), "%s with %q", tc.path, tc.key)
	}
}

func TestAPIKeyValidator(t *testing.T) {
	validator := auth.SimpleAPIKeyValidator(map[string]map[string]interface{}{
		"test-key": {"user_id": "123", "roles": []string{"user"}},
	})

	claims, err := validator("test-key")
	require.NoError(t, err)
	assert.Equal(t, "123", claims["user_id"])

	_, err = validator("invalid-key")
	assert.ErrorIs(t, err, auth.ErrUnknownAPIKey)
}
