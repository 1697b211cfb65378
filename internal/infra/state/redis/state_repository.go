package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"live-session/internal/repository"
)

// RedisStateRepository 用一个 Redis 客户端实现所有房间级的临时状态接口。
type RedisStateRepository struct {
	client  *redis.Client
	roomTTL time.Duration // 房间 key 的默认 TTL，0 表示不过期
}

var (
	_ repository.CodeStore      = (*RedisStateRepository)(nil)
	_ repository.RoomStateStore = (*RedisStateRepository)(nil)
	_ repository.CounterStore   = (*RedisStateRepository)(nil)
	_ repository.QuestionStore  = (*RedisStateRepository)(nil)
	_ repository.EventLog       = (*RedisStateRepository)(nil)
	_ repository.FeedbackStore  = (*RedisStateRepository)(nil)
	_ repository.RevisitStore   = (*RedisStateRepository)(nil)
	_ repository.PresenceStore  = (*RedisStateRepository)(nil)
)

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, roomTTL time.Duration) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	return &RedisStateRepository{
		client:  client,
		roomTTL: roomTTL,
	}
}

// expire 在管道中为房间 key 续期。
func (r *RedisStateRepository) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if r.roomTTL <= 0 {
		return
	}
	for _, key := range keys {
		pipe.Expire(ctx, key, r.roomTTL)
	}
}

// getInt 读取整数值，key 不存在时返回 repository.ErrNotFound。
func (r *RedisStateRepository) getInt(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: failed to parse '%s' from %s: %w", val, key, err)
	}
	return n, nil
}

// getIntOrZero 与 getInt 相同，但 key 不存在时返回 0。
func (r *RedisStateRepository) getIntOrZero(ctx context.Context, key string) (int64, error) {
	n, err := r.getInt(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return ttl.Milliseconds()
}
