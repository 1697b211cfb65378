package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/gateway"
	"live-session/internal/service"
)

func newTokens(t *testing.T) *service.TokenService {
	t.Helper()
	tokens, err := service.NewTokenService("test-secret", time.Hour, time.Hour)
	require.NoError(t, err)
	return tokens
}

func TestRoomFromDestination(t *testing.T) {
	cases := map[string]string{
		"/topic/room.abc-123.updates":              "abc-123",
		"/queue/room.r1":                           "r1",
		"/app/v1/rooms/r2/questions":               "r2",
		"/topic/p/r3/public":                       "r3",
		"/app/p/r3/anything":                       "r3",
		"/topic/presentation/r4/liveFeedback":      "r4",
		"/app/presentation/r4/pageChange/audience": "r4",
	}
	for dest, want := range cases {
		got, ok := gateway.RoomFromDestination(dest)
		assert.True(t, ok, dest)
		assert.Equal(t, want, got, dest)
	}

	_, ok := gateway.RoomFromDestination("/user/queue/errors")
	assert.False(t, ok)
}

func TestRequiredRole(t *testing.T) {
	assert.Equal(t, domain.RolePresenter, gateway.RequiredRole("/app/presenter/anything"))
	assert.Equal(t, domain.RoleAudience, gateway.RequiredRole("/app/audience/anything"))
	assert.Equal(t, domain.RolePresenter, gateway.RequiredRole("/topic/p/r1/presenter"))
	assert.Equal(t, domain.RoleUnknown, gateway.RequiredRole("/topic/p/r1/public"))
	assert.Equal(t, domain.RolePresenter, gateway.RequiredRole("/app/presentation/r1/pageChange/presenter"))
	assert.Equal(t, domain.RoleAudience, gateway.RequiredRole("/app/presentation/r1/reaction"))
	assert.Equal(t, domain.RoleAudience, gateway.RequiredRole("/app/presentation/r1/question"))
}

func TestIsAuxiliaryPath(t *testing.T) {
	assert.True(t, gateway.IsAuxiliaryPath("/ws/audience/info"))
	assert.True(t, gateway.IsAuxiliaryPath("/ws/audience/iframe.html"))
	assert.True(t, gateway.IsAuxiliaryPath("/ws/audience/123/abc.def/xhr_streaming"))
	assert.False(t, gateway.IsAuxiliaryPath("/ws/audience"))
	// websocket 传输本身要走握手与升级
	assert.False(t, gateway.IsAuxiliaryPath("/ws/audience/123/abc.def/websocket"))
}

func TestHandshake(t *testing.T) {
	tokens := newTokens(t)
	audienceToken, _, err := tokens.IssueAudience("r1", "a1")
	require.NoError(t, err)

	newReq := func(auth string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws/audience", nil)
		req.Header.Set("Upgrade", "websocket")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		return req
	}

	t.Run("requires upgrade", func(t *testing.T) {
		h := gateway.NewHandshaker(tokens, true)
		req := httptest.NewRequest(http.MethodGet, "/ws/audience", nil)
		_, err := h.Handshake(req, domain.RoleAudience)
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("valid credential", func(t *testing.T) {
		h := gateway.NewHandshaker(tokens, false)
		p, err := h.Handshake(newReq("Bearer "+audienceToken), domain.RoleAudience)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "r1", p.RoomID)
		assert.Equal(t, domain.RoleAudience, p.Role)
		assert.Equal(t, "a1", p.SubjectID)
	})

	t.Run("role must match endpoint", func(t *testing.T) {
		h := gateway.NewHandshaker(tokens, false)
		_, err := h.Handshake(newReq("Bearer "+audienceToken), domain.RolePresenter)
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("invalid credential", func(t *testing.T) {
		h := gateway.NewHandshaker(tokens, true)
		_, err := h.Handshake(newReq("Bearer not-a-token"), domain.RoleAudience)
		assert.ErrorIs(t, err, service.ErrTokenInvalid)
	})

	t.Run("anonymous admitted when allowed", func(t *testing.T) {
		h := gateway.NewHandshaker(tokens, true)
		p, err := h.Handshake(newReq(""), domain.RoleAudience)
		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("anonymous rejected when disallowed", func(t *testing.T) {
		h := gateway.NewHandshaker(tokens, false)
		_, err := h.Handshake(newReq(""), domain.RoleAudience)
		assert.ErrorIs(t, err, service.ErrTokenMissing)
	})
}

func TestAuthorizer(t *testing.T) {
	tokens := newTokens(t)
	authz := gateway.NewAuthorizer(tokens)
	audienceToken, _, err := tokens.IssueAudience("r1", "a1")
	require.NoError(t, err)
	presenterToken, _, err := tokens.IssuePresenter("r1")
	require.NoError(t, err)

	bearer := func(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

	t.Run("frame without credential on anonymous session", func(t *testing.T) {
		session := gateway.NewSession(nil)
		_, err := authz.Authorize(session, gateway.Frame{Command: gateway.CommandSubscribe, Destination: "/topic/p/r1/public"})
		assert.ErrorIs(t, err, service.ErrTokenMissing)
	})

	t.Run("credential on first frame is cached", func(t *testing.T) {
		session := gateway.NewSession(nil)
		p, err := authz.Authorize(session, gateway.Frame{Command: gateway.CommandConnect, Headers: bearer(audienceToken)})
		require.NoError(t, err)
		assert.Equal(t, "a1", p.SubjectID)

		cached, ok := session.Principal()
		require.True(t, ok)
		assert.Equal(t, "r1", cached.RoomID)

		_, err = authz.Authorize(session, gateway.Frame{Command: gateway.CommandSubscribe, Destination: "/topic/p/r1/public"})
		assert.NoError(t, err)
	})

	t.Run("room mismatch", func(t *testing.T) {
		p := domain.Principal{Role: domain.RoleAudience, RoomID: "r1", SubjectID: "a1"}
		session := gateway.NewSession(&p)
		_, err := authz.Authorize(session, gateway.Frame{Command: gateway.CommandSubscribe, Destination: "/topic/p/r2/public"})
		assert.ErrorIs(t, err, service.ErrRoomMismatch)
	})

	t.Run("audience cannot subscribe to presenter channel", func(t *testing.T) {
		p := domain.Principal{Role: domain.RoleAudience, RoomID: "r1", SubjectID: "a1"}
		session := gateway.NewSession(&p)
		_, err := authz.Authorize(session, gateway.Frame{Command: gateway.CommandSubscribe, Destination: "/topic/p/r1/presenter"})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("presenter publishes page change", func(t *testing.T) {
		session := gateway.NewSession(nil)
		_, err := authz.Authorize(session, gateway.Frame{
			Command:     gateway.CommandSend,
			Destination: "/app/presentation/r1/pageChange/presenter",
			Headers:     bearer(presenterToken),
		})
		assert.NoError(t, err)
	})

	t.Run("presenter cannot publish audience reaction", func(t *testing.T) {
		session := gateway.NewSession(nil)
		_, err := authz.Authorize(session, gateway.Frame{
			Command:     gateway.CommandSend,
			Destination: "/app/presentation/r1/reaction",
			Headers:     bearer(presenterToken),
		})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})
}
