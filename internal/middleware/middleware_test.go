package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/carpool-booking/internal/config"
	"github.com/iliyamo/carpool-booking/internal/utils"
)

func serve(e *echo.Echo, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user": UserID(c), "role": c.Get(CtxRole)})
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/p", whoami, JWTAuth("s3cret"))

	assert.Equal(t, http.StatusUnauthorized, serve(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "Bearer garbage").Code)

	other, err := utils.NewAccessToken("other", "u-1", "OWNER", 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "Bearer "+other.Token).Code)

	tok, err := utils.NewAccessToken("s3cret", "u-1", "OWNER", 5)
	require.NoError(t, err)
	rec := serve(e, "Bearer "+tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"u-1","role":"OWNER"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/p", whoami, JWTAuth("s3cret"), RequireRole("OWNER"))

	passenger, err := utils.NewAccessToken("s3cret", "u-1", "PASSENGER", 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(e, "Bearer "+passenger.Token).Code)

	owner, err := utils.NewAccessToken("s3cret", "u-2", "OWNER", 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(e, "Bearer "+owner.Token).Code)
}

func TestTokenBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/p", whoami, NewTokenBucket(cfg, rdb))

	first := serve(e, "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, serve(e, "").Code)

	blocked := serve(e, "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
}

func TestTokenBucket_DisabledPassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/p", whoami, NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, "").Code)
	}
}
