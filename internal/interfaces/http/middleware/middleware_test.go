package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashflow-studio/internal/interfaces/http/dto"
	"flashflow-studio/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequestIDPassThroughAndGenerate(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := serve(engine, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
}

func TestRecoveryWritesInternalError(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	require.NotNil(t, body.Error)
	assert.Equal(t, "1007", body.Error.ErrorCode)
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func rateLimited(limiter RateLimiter) *gin.Engine {
	engine := gin.New()
	engine.Use(Auth(AuthConfig{Enabled: false}))
	mw := RateLimit(RateLimitConfig{Enabled: true, Limit: 1, Window: time.Minute}, limiter, func(user, endpoint string) string {
		return user + "|" + endpoint
	})
	engine.POST("/gen", mw, func(c *gin.Context) { c.Status(http.StatusAccepted) })
	return engine
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	limiter := &stubLimiter{}
	req := httptest.NewRequest(http.MethodPost, "/gen", nil)
	req.Header.Set(DevUserHeader, "u1")

	w := serve(rateLimited(limiter), req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, []string{"u1|/gen"}, limiter.keys)
	assert.Equal(t, 60, decodeError(t, w).Error.RetryAfter)
}

func TestRateLimitFailsOpen(t *testing.T) {
	w := serve(rateLimited(&stubLimiter{err: errors.New("redis down")}), httptest.NewRequest(http.MethodPost, "/gen", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	engine := gin.New()
	engine.GET("/x", RateLimit(RateLimitConfig{}, nil, nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func authEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(Auth(AuthConfig{Secret: "s3cret", Issuer: "flashflow", Enabled: true, SkipPaths: DefaultSkipPaths}))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, GetUserIDFromGin(c)+"/"+GetUserID(c.Request.Context()))
	})
	return engine
}

func TestAuthBearerToken(t *testing.T) {
	m := utils.NewJWTManager("s3cret", "flashflow")
	access, err := m.GenerateToken("user-7", "pro", "access", time.Minute)
	require.NoError(t, err)
	refresh, err := m.GenerateToken("user-7", "pro", "refresh", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := serve(authEngine(), req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-7/user-7", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	w = serve(authEngine(), req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "2002", decodeError(t, w).Error.ErrorCode)
}

func TestAuthRejectsMissingAndSkipsHealth(t *testing.T) {
	w := serve(authEngine(), httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "2003", decodeError(t, w).Error.ErrorCode)

	w = serve(authEngine(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthDisabledUsesDevHeader(t *testing.T) {
	engine := gin.New()
	engine.Use(Auth(AuthConfig{Enabled: false}))
	engine.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, GetUserIDFromGin(c)) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, DevUserID, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(DevUserHeader, " alice ")
	assert.Equal(t, "alice", serve(engine, req).Body.String())
}

func TestCORSExposesRetryAfter(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS(CORSConfig{AllowedOrigins: []string{"https://studio.example"}}))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://studio.example")
	w := serve(engine, req)
	assert.Equal(t, "https://studio.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}
