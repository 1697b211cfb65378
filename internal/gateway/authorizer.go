package gateway

import (
	"sync"

	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/service"
)

// Session 保存一条连接上缓存的身份。
type Session struct {
	mu        sync.RWMutex
	principal *domain.Principal
}

// NewSession 用握手阶段得到的身份（可为 nil）创建 Session。
func NewSession(principal *domain.Principal) *Session {
	return &Session{principal: principal}
}

// Principal 返回缓存的身份。
func (s *Session) Principal() (domain.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return domain.Principal{}, false
	}
	return *s.principal, true
}

func (s *Session) bind(p domain.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		s.principal = &p
	}
}

// Authorizer 对每一帧做身份与目的地校验。
type Authorizer struct {
	tokens TokenParser
}

func NewAuthorizer(tokens TokenParser) *Authorizer {
	if tokens == nil {
		panic("TokenParser cannot be nil for Authorizer")
	}
	return &Authorizer{tokens: tokens}
}

// Authorize 返回处理该帧所用的身份。
// 身份优先取连接缓存，缓存为空时从帧头的 bearer 凭证解析并缓存。
// 目的地中的房间必须与连接绑定的房间一致，受限前缀还要求角色匹配。
func (a *Authorizer) Authorize(session *Session, frame Frame) (domain.Principal, error) {
	logCtx := logrus.WithFields(logrus.Fields{"command": frame.Command, "destination": frame.Destination})

	switch frame.Command {
	case CommandUnsubscribe, CommandDisconnect:
		p, _ := session.Principal()
		return p, nil
	case CommandConnect, CommandSubscribe, CommandSend:
	default:
		return domain.Principal{}, service.ErrInvalidInput.WithMessage("unsupported command %q", frame.Command)
	}

	principal, err := a.resolve(session, frame)
	if err != nil {
		logCtx.WithError(err).Warn("Frame rejected: no valid credential")
		return domain.Principal{}, err
	}
	if frame.Command == CommandConnect {
		return principal, nil
	}

	if rid, ok := RoomFromDestination(frame.Destination); ok && rid != principal.RoomID {
		logCtx.WithFields(logrus.Fields{"room_id": principal.RoomID, "destination_room": rid}).Warn("Frame rejected: room mismatch")
		return domain.Principal{}, service.ErrRoomMismatch
	}
	if required := RequiredRole(frame.Destination); required != domain.RoleUnknown && required != principal.Role {
		logCtx.WithField("role", principal.Role.String()).Warn("Frame rejected: role not allowed")
		return domain.Principal{}, service.ErrForbidden
	}
	return principal, nil
}

func (a *Authorizer) resolve(session *Session, frame Frame) (domain.Principal, error) {
	cached, hasCached := session.Principal()
	token := frame.BearerToken()

	if token == "" {
		if hasCached {
			return cached, nil
		}
		return domain.Principal{}, service.ErrTokenMissing
	}
	if hasCached && frame.Command != CommandConnect {
		return cached, nil
	}

	principal, err := a.tokens.Parse(token)
	if err != nil {
		return domain.Principal{}, err
	}
	if hasCached && cached.RoomID != principal.RoomID {
		return domain.Principal{}, service.ErrRoomMismatch
	}
	session.bind(principal)
	return principal, nil
}
