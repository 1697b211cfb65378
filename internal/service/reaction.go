package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// SubmitReactionInput 是提交表情贴纸的参数。CreatedAt 为 0 时使用服务端时间。
type SubmitReactionInput struct {
	RoomID     string
	Slide      int
	AudienceID string
	Emoji      int
	X, Y       float64
	CreatedAt  int64
}

// ReactionService 负责表情的写入，并交给 LiveAggregator 做多数反应检测。
type ReactionService struct {
	rooms       repository.RoomStateStore
	events      repository.EventLog
	limiter     *RateLimiter
	aggregator  *LiveAggregator
	broadcaster Broadcaster
	now         func() time.Time
}

func NewReactionService(rooms repository.RoomStateStore, events repository.EventLog, limiter *RateLimiter,
	aggregator *LiveAggregator, broadcaster Broadcaster) *ReactionService {
	if rooms == nil || events == nil || limiter == nil || aggregator == nil || broadcaster == nil {
		panic("all dependencies are required for ReactionService")
	}
	return &ReactionService{
		rooms:       rooms,
		events:      events,
		limiter:     limiter,
		aggregator:  aggregator,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// Submit 校验房间 → 限流 → 追加到表情日志 → 多数反应检测 → 广播表情本身。
func (s *ReactionService) Submit(ctx context.Context, in SubmitReactionInput) (*domain.Reaction, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": in.RoomID, "audience_id": in.AudienceID})

	if in.Slide <= 0 || in.Emoji <= 0 {
		return nil, ErrInvalidInput.WithMessage("slide and emoji must be positive")
	}
	if err := requireOpenRoom(ctx, s.rooms, in.RoomID); err != nil {
		logCtx.WithError(err).Warn("Reaction rejected: room is not open")
		return nil, err
	}
	if err := s.limiter.Admit(ctx, in.RoomID, in.AudienceID, ActionReaction); err != nil {
		return nil, err
	}

	reaction := domain.Reaction{
		Emoji:      in.Emoji,
		AudienceID: in.AudienceID,
		X:          in.X,
		Y:          in.Y,
		Slide:      in.Slide,
		CreatedAt:  in.CreatedAt,
	}
	if reaction.CreatedAt == 0 {
		reaction.CreatedAt = s.now().UnixMilli()
	}

	if _, err := s.events.AppendReaction(ctx, in.RoomID, reaction); err != nil {
		logCtx.WithError(err).Error("Failed to append reaction")
		return nil, ErrStore.Wrap(err)
	}

	// 表情已写入日志，检测失败只记录，不让客户端重试造成重复
	if _, err := s.aggregator.OnReaction(ctx, in.RoomID, reaction); err != nil {
		logCtx.WithError(err).Error("Failed to update live feedback")
	}

	// 广播时不暴露观众 id
	public := reaction
	public.AudienceID = ""
	if err := s.broadcaster.Broadcast(ctx, ReactionsTopic(in.RoomID), public); err != nil {
		logCtx.WithError(err).Warn("Failed to broadcast reaction")
	}
	return &reaction, nil
}
