package gateway

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/service"
)

// TokenParser 校验 bearer 凭证并返回连接身份。
type TokenParser interface {
	Parse(token string) (domain.Principal, error)
}

// 降级传输的协商路径（info、iframe 以及 xhr/eventsource 等轮询端点）
var auxTransportPath = regexp.MustCompile(`.*/\w+/[\w.-]+/(xhr|xhr_send|xhr_streaming|eventsource|jsonp|htmlfile).*`)

// IsAuxiliaryPath 判断请求是否为传输协商的辅助路径，这类请求无条件放行。
func IsAuxiliaryPath(path string) bool {
	if strings.HasSuffix(path, "/info") || strings.Contains(path, "/iframe.html") {
		return true
	}
	return auxTransportPath.MatchString(path)
}

// Handshaker 校验传输握手并在可能时确定连接身份。
type Handshaker struct {
	tokens         TokenParser
	allowAnonymous bool
}

func NewHandshaker(tokens TokenParser, allowAnonymous bool) *Handshaker {
	if tokens == nil {
		panic("TokenParser cannot be nil for Handshaker")
	}
	return &Handshaker{tokens: tokens, allowAnonymous: allowAnonymous}
}

// Handshake 要求 websocket 升级并解析 Authorization 头。
// 没有凭证时，allowAnonymous 为 true 则放行（返回 nil principal），身份推迟到第一条消息确定。
// endpointRole 不为 RoleUnknown 时，凭证角色必须与端点一致。
func (h *Handshaker) Handshake(r *http.Request, endpointRole domain.Role) (*domain.Principal, error) {
	logCtx := logrus.WithFields(logrus.Fields{"path": r.URL.Path, "client_ip": clientIP(r)})

	if !isWebsocketUpgrade(r) {
		logCtx.Warn("Handshake rejected: missing websocket upgrade")
		return nil, service.ErrInvalidInput.WithMessage("websocket upgrade required")
	}

	token := ParseBearer(r.Header.Get("Authorization"))
	if token == "" {
		// 浏览器的 websocket API 无法设置请求头，允许通过查询参数携带
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		if h.allowAnonymous {
			logCtx.Warn("Handshake admitted without credential, identity deferred to first frame")
			return nil, nil
		}
		return nil, service.ErrTokenMissing
	}

	principal, err := h.tokens.Parse(token)
	if err != nil {
		logCtx.WithError(err).Warn("Handshake rejected: invalid credential")
		return nil, err
	}
	if endpointRole != domain.RoleUnknown && principal.Role != endpointRole {
		logCtx.WithField("role", principal.Role.String()).Warn("Handshake rejected: role does not match endpoint")
		return nil, service.ErrForbidden
	}
	logCtx.WithFields(logrus.Fields{"room_id": principal.RoomID, "role": principal.Role.String()}).Debug("Handshake authenticated")
	return &principal, nil
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}
