package repository

import (
	"context"
	"time"
)

// CounterStore 提供带窗口的原子计数器，用于限流。
type CounterStore interface {
	// IncrementRate 原子地对 rate:<roomId>:<actorId>:<action> 加一；
	// 当结果为 1 时设置窗口 TTL。返回递增后的值。
	IncrementRate(ctx context.Context, roomID, actorID, action string, window time.Duration) (int64, error)

	// IncrementKey 对任意 key 做同样的窗口计数，供 HTTP 中间件按 IP 限流。
	IncrementKey(ctx context.Context, key string, window time.Duration) (int64, error)
}
