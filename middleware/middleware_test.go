package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/teamfeed/config"
	"github.com/cppla/teamfeed/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{JWTSecret: "middleware-secret", LogLevel: "silent"})
	utils.SetRedis(nil)
	os.Exit(m.Run())
}

func whoami(ctx *gin.Context) {
	id, ok := UserID(ctx)
	ctx.JSON(http.StatusOK, gin.H{"id": id, "ok": ok})
}

func doRequest(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/", AuthRequired(), whoami)

	pair, err := utils.GenerateTokenPair(7, "alice")
	require.NoError(t, err)

	w := doRequest(r, pair.Access)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"ok":true}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, "garbage").Code)
	// refresh tokens cannot be used as access tokens
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, pair.Refresh).Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token "+pair.Access)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40102`)
}

func TestAuthRequiredRejectsRevokedToken(t *testing.T) {
	r := gin.New()
	r.GET("/", AuthRequired(), whoami)

	pair, err := utils.GenerateTokenPair(8, "bob")
	require.NoError(t, err)
	claims, err := utils.ParseToken(pair.Access)
	require.NoError(t, err)

	utils.BlacklistToken(context.Background(), claims.ID, claims.ExpiresAt.Time)
	w := doRequest(r, pair.Access)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token revoked")
}

func TestAuthOptional(t *testing.T) {
	r := gin.New()
	r.GET("/", AuthOptional(), whoami)

	assert.JSONEq(t, `{"id":0,"ok":false}`, doRequest(r, "").Body.String())
	assert.JSONEq(t, `{"id":0,"ok":false}`, doRequest(r, "garbage").Body.String())

	pair, err := utils.GenerateTokenPair(9, "carol")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9,"ok":true}`, doRequest(r, pair.Access).Body.String())
}

func TestIPLimiters(t *testing.T) {
	l := newIPLimiters(4) // burst 2, one token per 15s
	now := time.Now()

	assert.True(t, l.allow("1.1.1.1", now))
	assert.True(t, l.allow("1.1.1.1", now))
	assert.False(t, l.allow("1.1.1.1", now))
	assert.True(t, l.allow("2.2.2.2", now), "buckets are per key")
	assert.True(t, l.allow("1.1.1.1", now.Add(15*time.Second)))

	// idle buckets are dropped
	l.allow("3.3.3.3", now.Add(limiterIdleTTL+time.Minute))
	l.mu.Lock()
	_, kept := l.limiters["2.2.2.2"]
	l.mu.Unlock()
	assert.False(t, kept)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimitMiddleware(2), func(ctx *gin.Context) { ctx.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, doRequest(r, "").Code)
	w := doRequest(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":42901`)
}

func TestMetricsCountsByRoute(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/items/:id", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "200"))
	for _, p := range []string{"/items/1", "/items/2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "200"))
	assert.Equal(t, float64(2), after-before)
}
