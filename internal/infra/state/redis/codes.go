package redisstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"live-session/internal/repository"
)

// compareAndSwapScript: 当前值等于 ARGV[1] 时写入 ARGV[2]，ARGV[3] 为毫秒 TTL。
var compareAndSwapScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

var deleteIfValueScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// SetCodeIfAbsent 使用 SETNX 预留邀请码
func (r *RedisStateRepository) SetCodeIfAbsent(ctx context.Context, code, value string, ttl time.Duration) (bool, error) {
	key := codeKey(code)
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to setnx %s: %w", key, err)
	}
	return ok, nil
}

// GetCode 读取邀请码的当前值
func (r *RedisStateRepository) GetCode(ctx context.Context, code string) (string, error) {
	key := codeKey(code)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrCodeNotFound
		}
		return "", fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	return val, nil
}

// CompareAndSwapCode 原子地比较并替换邀请码的值
func (r *RedisStateRepository) CompareAndSwapCode(ctx context.Context, code, expected, value string, ttl time.Duration) (bool, error) {
	key := codeKey(code)
	n, err := compareAndSwapScript.Run(ctx, r.client, []string{key}, expected, value, ttlMillis(ttl)).Int()
	if err != nil {
		return false, fmt.Errorf("redis: failed to swap %s: %w", key, err)
	}
	return n == 1, nil
}

// DeleteCodeIfValue 仅在值未变时删除邀请码
func (r *RedisStateRepository) DeleteCodeIfValue(ctx context.Context, code, expected string) (bool, error) {
	key := codeKey(code)
	n, err := deleteIfValueScript.Run(ctx, r.client, []string{key}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("redis: failed to delete %s: %w", key, err)
	}
	return n == 1, nil
}

// ExpireCode 修改邀请码 key 的剩余 TTL，不影响 room:<roomId>:code
func (r *RedisStateRepository) ExpireCode(ctx context.Context, code string, ttl time.Duration) error {
	key := codeKey(code)
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: failed to expire %s: %w", key, err)
	}
	if !ok {
		return repository.ErrCodeNotFound
	}
	return nil
}

func (r *RedisStateRepository) SetRoomCode(ctx context.Context, roomID, code string, ttl time.Duration) error {
	key := roomCodeKey(roomID)
	if err := r.client.Set(ctx, key, code, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStateRepository) GetRoomCode(ctx context.Context, roomID string) (string, error) {
	key := roomCodeKey(roomID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	return val, nil
}
