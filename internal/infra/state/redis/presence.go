package redisstate

import (
	"context"
	"fmt"
)

// 在线观众集合由实时 hub 在观众连接/断开时维护。

func (r *RedisStateRepository) AddOnline(ctx context.Context, roomID, audienceID string) error {
	key := audienceOnlineKey(roomID)
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, audienceID)
	r.expire(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to add %s to %s: %w", audienceID, key, err)
	}
	return nil
}

func (r *RedisStateRepository) RemoveOnline(ctx context.Context, roomID, audienceID string) error {
	key := audienceOnlineKey(roomID)
	if err := r.client.SRem(ctx, key, audienceID).Err(); err != nil {
		return fmt.Errorf("redis: failed to remove %s from %s: %w", audienceID, key, err)
	}
	return nil
}

func (r *RedisStateRepository) OnlineCount(ctx context.Context, roomID string) (int64, error) {
	key := audienceOnlineKey(roomID)
	n, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to scard %s: %w", key, err)
	}
	return n, nil
}
