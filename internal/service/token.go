package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"live-session/internal/domain"
)

// PresenterSubject 是讲者凭证的 sub。
const PresenterSubject = "presenter"

// Claims 是凭证中携带的声明：{roomId, role, jti, iat, exp}
type Claims struct {
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService 签发与校验房间范围的 bearer 凭证。
type TokenService struct {
	secret       []byte
	presenterTTL time.Duration
	audienceTTL  time.Duration
	now          func() time.Time
}

// NewTokenService 创建 TokenService。secret 不能为空。
func NewTokenService(secret string, presenterTTL, audienceTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if presenterTTL <= 0 {
		presenterTTL = 24 * time.Hour
	}
	if audienceTTL <= 0 {
		audienceTTL = 24 * time.Hour
	}
	return &TokenService{
		secret:       []byte(secret),
		presenterTTL: presenterTTL,
		audienceTTL:  audienceTTL,
		now:          time.Now,
	}, nil
}

// IssuePresenter 为讲者签发凭证。
func (s *TokenService) IssuePresenter(roomID string) (string, time.Time, error) {
	return s.issue(roomID, domain.RolePresenter, PresenterSubject, s.presenterTTL)
}

// IssueAudience 为观众签发凭证，sub 为观众 id。
func (s *TokenService) IssueAudience(roomID, audienceID string) (string, time.Time, error) {
	return s.issue(roomID, domain.RoleAudience, audienceID, s.audienceTTL)
}

func (s *TokenService) issue(roomID string, role domain.Role, subject string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RoomID: roomID,
		Role:   role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse 校验签名与有效期并提取连接身份。
func (s *TokenService) Parse(tokenStr string) (domain.Principal, error) {
	if tokenStr == "" {
		return domain.Principal{}, ErrTokenMissing
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return domain.Principal{}, ErrTokenInvalid.WithMessage("credential expired").Wrap(err)
		}
		return domain.Principal{}, ErrTokenInvalid.Wrap(err)
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil || claims.RoomID == "" {
		return domain.Principal{}, ErrTokenClaimInvalid
	}
	return domain.Principal{
		Role:      role,
		RoomID:    claims.RoomID,
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
	}, nil
}
