package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/gateway"
	"live-session/internal/hub"
	"live-session/internal/service"
)

const appPrefix = "/app/presentation/"

// PresenterPageRequest 是讲者翻页消息
type PresenterPageRequest struct {
	Page int `json:"page" validate:"required,gt=0"`
}

// AudiencePageRequest 是观众翻页消息，beforePage 为 0 表示首次进入
type AudiencePageRequest struct {
	AudienceID string `json:"audienceId"`
	BeforePage int    `json:"beforePage" validate:"gte=0"`
	AfterPage  int    `json:"afterPage" validate:"required,gt=0"`
}

// ReactionRequest 是观众贴表情消息
type ReactionRequest struct {
	AudienceID string  `json:"audienceId"`
	Slide      int     `json:"slide" validate:"required,gt=0"`
	Emoji      int     `json:"emoji" validate:"required,gt=0"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	CreatedAt  int64   `json:"createdAt" validate:"gte=0"`
}

// QuestionRequest 是观众提问消息
type QuestionRequest struct {
	AudienceID string `json:"audienceId"`
	Slide      int    `json:"slide" validate:"required,gt=0"`
	Content    string `json:"content" validate:"required,max=500"`
	Ts         *int64 `json:"ts" validate:"omitempty,gt=0"`
}

// UnlockRequest 是讲者切换解锁选项的消息
type UnlockRequest struct {
	RevealAllSlides bool `json:"revealAllSlides"`
}

// Router 把 /app/presentation/<roomId>/... 的 SEND 帧分派给对应的服务。
type Router struct {
	pages     *service.PageService
	questions *service.QuestionService
	reactions *service.ReactionService
	validate  *validator.Validate
}

var _ hub.Dispatcher = (*Router)(nil)

// NewRouter 创建 Router 实例
func NewRouter(pages *service.PageService, questions *service.QuestionService, reactions *service.ReactionService) *Router {
	if pages == nil || questions == nil || reactions == nil {
		panic("all services are required for Router")
	}
	return &Router{
		pages:     pages,
		questions: questions,
		reactions: reactions,
		validate:  validator.New(),
	}
}

// Dispatch 实现 hub.Dispatcher。帧已经过 Authorizer 校验，房间与角色在这里不再检查。
func (r *Router) Dispatch(ctx context.Context, principal domain.Principal, frame gateway.Frame) error {
	roomID, action, ok := splitDestination(frame.Destination)
	if !ok {
		return service.ErrInvalidInput.WithMessage("unknown destination %q", frame.Destination)
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "destination": frame.Destination})

	switch action {
	case "pageChange/presenter":
		var req PresenterPageRequest
		if err := r.decode(frame.Body, &req); err != nil {
			return err
		}
		return r.pages.ChangePresenterPage(ctx, roomID, req.Page)

	case "pageChange/audience":
		var req AudiencePageRequest
		if err := r.decode(frame.Body, &req); err != nil {
			return err
		}
		return r.pages.ChangeAudiencePage(ctx, roomID, audienceID(principal, req.AudienceID), req.BeforePage, req.AfterPage)

	case "reaction":
		var req ReactionRequest
		if err := r.decode(frame.Body, &req); err != nil {
			return err
		}
		_, err := r.reactions.Submit(ctx, service.SubmitReactionInput{
			RoomID:     roomID,
			Slide:      req.Slide,
			AudienceID: audienceID(principal, req.AudienceID),
			Emoji:      req.Emoji,
			X:          req.X,
			Y:          req.Y,
			CreatedAt:  req.CreatedAt,
		})
		return err

	case "question":
		var req QuestionRequest
		if err := r.decode(frame.Body, &req); err != nil {
			return err
		}
		_, err := r.questions.Submit(ctx, service.SubmitQuestionInput{
			RoomID:     roomID,
			Slide:      req.Slide,
			AudienceID: audienceID(principal, req.AudienceID),
			Content:    req.Content,
			Ts:         req.Ts,
		})
		return err

	case "option/unlock":
		var req UnlockRequest
		if err := r.decode(frame.Body, &req); err != nil {
			return err
		}
		_, err := r.pages.SetSlideUnlock(ctx, roomID, req.RevealAllSlides)
		return err

	case "focusOn":
		_, err := r.pages.FocusOn(ctx, roomID)
		return err
	}

	logCtx.Warn("No handler for destination")
	return service.ErrInvalidInput.WithMessage("unknown destination %q", frame.Destination)
}

// decode 解析并校验消息体
func (r *Router) decode(body json.RawMessage, dst interface{}) error {
	if len(body) == 0 {
		return service.ErrInvalidInput.WithMessage("message body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return service.ErrInvalidInput.WithMessage("malformed message body")
	}
	if err := r.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return service.ErrInvalidInput.WithMessage("field %s failed on '%s'", verrs[0].Field(), verrs[0].Tag())
		}
		return service.ErrInvalidInput.WithMessage("invalid message body")
	}
	return nil
}

func splitDestination(destination string) (roomID, action string, ok bool) {
	if !strings.HasPrefix(destination, appPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(destination, appPrefix)
	i := strings.Index(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// audienceID 以凭证中的 sub 为准，只有 sub 为空时才使用消息体中的值。
func audienceID(p domain.Principal, fromBody string) string {
	if p.SubjectID != "" {
		return p.SubjectID
	}
	return fromBody
}
