package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/middleware"
	"live-session/internal/repository/mocks"
	"live-session/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(t *testing.T, role domain.Role) (*gin.Engine, *service.TokenService) {
	t.Helper()
	tokens, err := service.NewTokenService("mw-secret", time.Hour, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/rooms/:roomId", middleware.Auth(tokens), middleware.RequireRoomRole(role), func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		c.String(http.StatusOK, p.SubjectID)
	})
	return r, tokens
}

func get(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r, tokens := newAuthRouter(t, domain.RoleUnknown)
	audienceToken, _, err := tokens.IssueAudience("r1", "a1")
	require.NoError(t, err)

	t.Run("缺少凭证", func(t *testing.T) {
		w := get(r, "/rooms/r1", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "WS_JWT_MISSING")
	})

	t.Run("格式错误", func(t *testing.T) {
		w := get(r, "/rooms/r1", "Token "+audienceToken)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("凭证无效", func(t *testing.T) {
		w := get(r, "/rooms/r1", "Bearer not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "WS_JWT_INVALID")
	})

	t.Run("通过", func(t *testing.T) {
		w := get(r, "/rooms/r1", "Bearer "+audienceToken)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "a1", w.Body.String())
	})

	t.Run("房间不一致", func(t *testing.T) {
		w := get(r, "/rooms/r2", "Bearer "+audienceToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "WS_ROOM_MISMATCH")
	})
}

func TestRequireRoomRole(t *testing.T) {
	r, tokens := newAuthRouter(t, domain.RolePresenter)
	audienceToken, _, err := tokens.IssueAudience("r1", "a1")
	require.NoError(t, err)
	presenterToken, _, err := tokens.IssuePresenter("r1")
	require.NoError(t, err)

	w := get(r, "/rooms/r1", "Bearer "+audienceToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "WS_FORBIDDEN")

	w = get(r, "/rooms/r1", "Bearer "+presenterToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.PresenterSubject, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	counters := new(mocks.CounterStore)
	counters.On("IncrementKey", mock.Anything, "ratelimit:192.0.2.1", time.Second).Return(int64(1), nil).Once()
	counters.On("IncrementKey", mock.Anything, "ratelimit:192.0.2.1", time.Second).Return(int64(3), nil).Once()
	counters.On("IncrementKey", mock.Anything, "ratelimit:192.0.2.1", time.Second).Return(int64(0), errors.New("redis down")).Once()

	r := gin.New()
	r.Use(middleware.RateLimit(counters, 2, time.Second))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// httptest.NewRequest 的 RemoteAddr 固定为 192.0.2.1:1234
	assert.Equal(t, http.StatusOK, get(r, "/ping", "").Code)

	w := get(r, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusInternalServerError, get(r, "/ping", "").Code)
	counters.AssertExpectations(t)
}

func TestRateLimit_PanicsOnBadConfig(t *testing.T) {
	assert.Panics(t, func() { middleware.RateLimit(nil, 1, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(new(mocks.CounterStore), 0, time.Second) })
	assert.Panics(t, func() { middleware.RateLimit(new(mocks.CounterStore), 1, 0) })
}
