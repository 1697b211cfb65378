package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/gateway"
	"live-session/internal/service"
)

// PrincipalKey 是 Gin 上下文中保存连接身份的键
const PrincipalKey = "principal"

// TokenParser 校验 bearer 凭证并返回身份
type TokenParser interface {
	Parse(token string) (domain.Principal, error)
}

// Auth 返回一个 Gin 中间件，校验 Authorization 头中的凭证并把身份写入上下文。
func Auth(tokens TokenParser) gin.HandlerFunc {
	// 在创建中间件时就进行检查，避免运行时 panic
	if tokens == nil {
		panic("TokenParser cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		token := gateway.ParseBearer(c.GetHeader("Authorization"))
		if token == "" {
			logrus.WithField("path", c.Request.URL.Path).Warn("Auth middleware: Missing or malformed Authorization header")
			abortWithError(c, http.StatusUnauthorized, service.ErrTokenMissing)
			return
		}

		principal, err := tokens.Parse(token)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Invalid token")
			abortWithError(c, http.StatusUnauthorized, err)
			return
		}

		c.Set(PrincipalKey, principal)
		logrus.WithFields(logrus.Fields{
			"room_id": principal.RoomID,
			"role":    principal.Role.String(),
		}).Debug("Auth middleware: Principal authenticated")

		c.Next()
	}
}

// RequireRoomRole 要求身份属于路径参数 roomId 指定的房间；role 不为 RoleUnknown 时还要求角色一致。
func RequireRoomRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, service.ErrTokenMissing)
			return
		}
		if roomID := c.Param("roomId"); roomID != "" && roomID != principal.RoomID {
			abortWithError(c, http.StatusForbidden, service.ErrRoomMismatch)
			return
		}
		if role != domain.RoleUnknown && principal.Role != role {
			abortWithError(c, http.StatusForbidden, service.ErrForbidden)
			return
		}
		c.Next()
	}
}

// PrincipalFrom 读取 Auth 中间件写入的身份
func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

func abortWithError(c *gin.Context, status int, err error) {
	e := service.AsError(err)
	c.AbortWithStatusJSON(status, gin.H{"code": e.Code, "error": e.Message})
}
