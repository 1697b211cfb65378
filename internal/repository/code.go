package repository

import (
	"context"
	"time"
)

// CodeStore 管理邀请码 key（code:<code>）及其反向映射（room:<roomId>:code）。
// 所有条件写入都必须是 store 端的原子操作。
type CodeStore interface {
	// SetCodeIfAbsent 仅当 code 不存在时写入 value，返回是否写入成功。
	SetCodeIfAbsent(ctx context.Context, code, value string, ttl time.Duration) (bool, error)

	// GetCode 读取 code 的当前值。不存在时返回 ErrNotFound。
	GetCode(ctx context.Context, code string) (string, error)

	// CompareAndSwapCode 仅当当前值等于 expected 时替换为 value 并刷新 TTL。
	CompareAndSwapCode(ctx context.Context, code, expected, value string, ttl time.Duration) (bool, error)

	// DeleteCodeIfValue 仅当当前值等于 expected 时删除 code。
	DeleteCodeIfValue(ctx context.Context, code, expected string) (bool, error)

	// ExpireCode 修改 code 的剩余 TTL。
	ExpireCode(ctx context.Context, code string, ttl time.Duration) error

	// SetRoomCode 记录 roomId → code 的反向映射。
	SetRoomCode(ctx context.Context, roomID, code string, ttl time.Duration) error

	// GetRoomCode 读取房间的邀请码。不存在时返回 ErrNotFound。
	GetRoomCode(ctx context.Context, roomID string) (string, error)
}
