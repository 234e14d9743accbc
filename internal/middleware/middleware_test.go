package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/election-voting-portal/internal/access"
	"github.com/iliyamo/election-voting-portal/internal/config"
	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/utils"
)

const secret = "test-secret"

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthSetsIdentity(t *testing.T) {
	e := echo.New()
	var gotID uint64
	var gotRole model.Role
	e.GET("/me", func(c echo.Context) error {
		gotID = c.Get(CtxUserID).(uint64)
		gotRole = c.Get(CtxRole).(model.Role)
		return c.NoContent(http.StatusOK)
	}, JWTAuth(secret))

	tok, err := utils.NewAccessToken(secret, 42, string(model.RoleObserver), 5)
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/me", tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(42), gotID)
	assert.Equal(t, model.RoleObserver, gotRole)
}

func TestJWTAuthRejects(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, JWTAuth(secret))

	other, err := utils.NewAccessToken("other-secret", 1, string(model.RoleAdmin), 5)
	require.NoError(t, err)
	badRole, err := utils.NewAccessToken(secret, 1, "superuser", 5)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", other.Token},
		{"unknown role", badRole.Token},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(e, http.MethodGet, "/me", tc.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireCapability(t *testing.T) {
	policy := access.NewPolicy()
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/admin", ok, JWTAuth(secret), RequireCapability(policy, access.ManageElections))
	e.GET("/reports", ok, JWTAuth(secret), RequireCapability(policy, access.ViewReports))

	token := func(role model.Role) string {
		tok, err := utils.NewAccessToken(secret, 7, string(role), 5)
		require.NoError(t, err)
		return tok.Token
	}

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/admin", token(model.RoleAdmin)).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", token(model.RoleElectionOfficer)).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/reports", token(model.RoleObserver)).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/reports", token(model.RoleVoter)).Code)
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	e := echo.New()
	e.Use(RequestID(), RequestLogger())
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	rec := serve(e, http.MethodGet, "/ping", "")
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))
}

func TestDisabledRedisMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestCacheKeyDistinguishesElections(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "evp:cache", KeyStrategy: "route_params"}
	e := echo.New()
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/results/:id")
		return cacheKeyFrom(cfg, c)
	}
	assert.NotEqual(t, key("/v1/results/1"), key("/v1/results/2"))
	assert.Equal(t, key("/v1/results/1?a=1&b=2"), key("/v1/results/1?b=2&a=1"))
	assert.Contains(t, key("/v1/results/1"), "evp:cache:")

	cfg.KeyStrategy = "route"
	assert.Equal(t, key("/v1/results/1"), key("/v1/results/2"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.1.2.3")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")

	cfg := config.RateLimitConfig{Prefix: "evp:rl"}
	assert.Equal(t, "evp:rl:ip:10.1.2.3:route:POST /v1/auth/login", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "evp:rl:user:anon", buildRateKey(cfg, c))
	c.Set(CtxUserID, uint64(9))
	assert.Equal(t, "evp:rl:user:9", buildRateKey(cfg, c))
}
