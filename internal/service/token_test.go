package service_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/service"
)

func TestTokenService_RoundTrip(t *testing.T) {
	tokens, err := service.NewTokenService("secret", time.Hour, 2*time.Hour)
	require.NoError(t, err)

	presenterToken, presenterExp, err := tokens.IssuePresenter("r1")
	require.NoError(t, err)
	audienceToken, audienceExp, err := tokens.IssueAudience("r1", "a1")
	require.NoError(t, err)
	assert.True(t, audienceExp.After(presenterExp))

	presenter, err := tokens.Parse(presenterToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePresenter, presenter.Role)
	assert.Equal(t, "r1", presenter.RoomID)
	assert.Equal(t, service.PresenterSubject, presenter.SubjectID)
	assert.NotEmpty(t, presenter.TokenID)

	audience, err := tokens.Parse(audienceToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAudience, audience.Role)
	assert.Equal(t, "a1", audience.SubjectID)
	assert.NotEqual(t, presenter.TokenID, audience.TokenID)
}

func TestTokenService_Rejects(t *testing.T) {
	tokens, err := service.NewTokenService("secret", time.Hour, time.Hour)
	require.NoError(t, err)
	sign := func(secret string, claims service.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	_, err = tokens.Parse("")
	assert.ErrorIs(t, err, service.ErrTokenMissing)

	_, err = tokens.Parse("garbage")
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = tokens.Parse(sign("other-secret", service.Claims{RoomID: "r1", Role: "audience", RegisteredClaims: valid}))
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	expired := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}
	_, err = tokens.Parse(sign("secret", service.Claims{RoomID: "r1", Role: "audience", RegisteredClaims: expired}))
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = tokens.Parse(sign("secret", service.Claims{RoomID: "r1", Role: "admin", RegisteredClaims: valid}))
	assert.ErrorIs(t, err, service.ErrTokenClaimInvalid)

	_, err = tokens.Parse(sign("secret", service.Claims{Role: "presenter", RegisteredClaims: valid}))
	assert.ErrorIs(t, err, service.ErrTokenClaimInvalid)

	_, err = service.NewTokenService("", time.Hour, time.Hour)
	assert.Error(t, err)
}
