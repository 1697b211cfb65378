package repository

import (
	"context"
)

// RevisitStore 管理观众所在页集合与回访计数。
type RevisitStore interface {
	// MoveAudience 将观众从 before 页集合移到 after 页集合。before <= 0 时只加入。
	MoveAudience(ctx context.Context, roomID, audienceID string, before, after int) error

	// RecordRevisit 累加该页回访数、个人回访数，并加入去重回访者集合。
	RecordRevisit(ctx context.Context, roomID, audienceID string, slide int) error

	// GetRevisits 返回 1..totalPages 每页的回访数（缺失为 0）。
	GetRevisits(ctx context.Context, roomID string, totalPages int) ([]int64, error)

	// RevisitUsers 返回该页的去重回访者数以及个人回访次数 >= minCount 的人数。
	RevisitUsers(ctx context.Context, roomID string, slide int, minCount int64) (unique int64, multi int64, err error)

	// SlideAudienceCounts 返回 1..totalPages 每页当前观众数。
	SlideAudienceCounts(ctx context.Context, roomID string, totalPages int) ([]int64, error)
}

// PresenceStore 管理在线观众集合 room:<roomId>:audience:online。
type PresenceStore interface {
	AddOnline(ctx context.Context, roomID, audienceID string) error
	RemoveOnline(ctx context.Context, roomID, audienceID string) error
	OnlineCount(ctx context.Context, roomID string) (int64, error)
}
