package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"live-session/internal/repository"
)

const (
	DefaultActionLimit  = 10
	DefaultActionWindow = 5 * time.Second
)

// 限流 key 中的动作名
const (
	ActionQuestion = "q"
	ActionReaction = "s"
)

// RateLimiter 按 (room, actor, action) 做固定窗口限流。
// 拒绝不会清空计数，窗口自然过期后才恢复。
type RateLimiter struct {
	counters repository.CounterStore
	limit    int64
	window   time.Duration
}

func NewRateLimiter(counters repository.CounterStore, limit int, window time.Duration) *RateLimiter {
	if counters == nil {
		panic("CounterStore cannot be nil for RateLimiter")
	}
	if limit <= 0 {
		limit = DefaultActionLimit
	}
	if window <= 0 {
		window = DefaultActionWindow
	}
	return &RateLimiter{counters: counters, limit: int64(limit), window: window}
}

// Admit 返回 nil 表示放行，ErrRateLimited 表示超限。
func (l *RateLimiter) Admit(ctx context.Context, roomID, actorID, action string) error {
	count, err := l.counters.IncrementRate(ctx, roomID, actorID, action, l.window)
	if err != nil {
		return ErrStore.Wrap(err)
	}
	if count > l.limit {
		logrus.WithFields(logrus.Fields{
			"room_id":  roomID,
			"actor_id": actorID,
			"action":   action,
			"count":    count,
		}).Warn("Rate limit exceeded")
		return ErrRateLimited
	}
	return nil
}
