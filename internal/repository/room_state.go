package repository

import (
	"context"
	"time"

	"live-session/internal/domain"
)

// RoomState 是创建房间时一次写入的初始状态。
type RoomState struct {
	Status     domain.SessionStatus
	DeckID     string
	TotalPages int
}

// RoomStateStore 管理房间级别的标量状态（状态、页数、讲者页、选项、讲者密钥）。
type RoomStateStore interface {
	InitRoomState(ctx context.Context, roomID string, state RoomState, ttl time.Duration) error
	GetRoomState(ctx context.Context, roomID string) (*RoomState, error)
	SetSessionStatus(ctx context.Context, roomID string, status domain.SessionStatus) error
	GetSessionStatus(ctx context.Context, roomID string) (domain.SessionStatus, error)
	RoomTTL(ctx context.Context, roomID string) (time.Duration, error)

	// GetTotalPages 返回幻灯片数量。未设置时返回 ErrNotFound。
	GetTotalPages(ctx context.Context, roomID string) (int, error)

	SetPresenterPage(ctx context.Context, roomID string, page int) error
	// GetPresenterPage 返回讲者当前页。未设置时返回 ErrNotFound。
	GetPresenterPage(ctx context.Context, roomID string) (int, error)
	// AdvanceMaxSlide 当 page 大于已记录的最大页时更新，返回是否更新。
	AdvanceMaxSlide(ctx context.Context, roomID string, page int) (bool, error)
	GetMaxSlide(ctx context.Context, roomID string) (int, error)

	SetSlideUnlock(ctx context.Context, roomID string, unlocked bool) error
	GetSlideUnlock(ctx context.Context, roomID string) (bool, error)

	SetPresenterKeyHash(ctx context.Context, roomID, hash string, ttl time.Duration) error
	// GetPresenterKeyHash 未设置时返回 ErrNotFound。
	GetPresenterKeyHash(ctx context.Context, roomID string) (string, error)

	// IncrementAudienceEntered 累加入场人数并返回新值。
	IncrementAudienceEntered(ctx context.Context, roomID string) (int64, error)
	GetAudienceEntered(ctx context.Context, roomID string) (int64, error)

	// CleanupRoom 删除 room:<roomId>:* 下的所有 key、问题事件流、房间的限流 key 以及 code key。
	CleanupRoom(ctx context.Context, roomID, code string) error
}
