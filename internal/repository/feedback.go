package repository

import (
	"context"
	"time"

	"live-session/internal/domain"
)

// ReactionTally 是记录一次表情后每页的统计快照。
type ReactionTally struct {
	DistinctReactors int64               // 该页该表情的去重观众数
	Counts           []domain.EmojiCount // 按首次出现顺序
}

// FeedbackStore 管理每页的多数反应检测状态。
type FeedbackStore interface {
	// InitFeedback 为 1..totalPages 每页写入 NONE 初始状态。
	InitFeedback(ctx context.Context, roomID string, totalPages int, ttl time.Duration) error

	// RecordReaction 原子地登记反应者、累加表情计数并记录首次出现顺序。
	RecordReaction(ctx context.Context, roomID string, slide, emoji int, audienceID string) (*ReactionTally, error)

	// GetFeedback 返回该页状态；未初始化的页返回 NONE 默认值。
	GetFeedback(ctx context.Context, roomID string, slide int) (*domain.ThresholdState, error)

	// AdvanceFeedback 仅当当前状态等于 from 时写入 next，返回是否写入。
	AdvanceFeedback(ctx context.Context, roomID string, from domain.ThresholdStatus, next domain.ThresholdState) (bool, error)
}
