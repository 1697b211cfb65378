package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

var advanceMaxScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) <= cur then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// InitRoomState 写入房间的初始状态、页数与 deck 引用
func (r *RedisStateRepository) InitRoomState(ctx context.Context, roomID string, state repository.RoomState, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionStatusKey(roomID), string(state.Status), ttl)
		pipe.Set(ctx, deckIDKey(roomID), state.DeckID, ttl)
		pipe.Set(ctx, totalPageKey(roomID), state.TotalPages, ttl)
		pipe.Set(ctx, slideUnlockKey(roomID), "false", ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to init room state for room %s: %w", roomID, err)
	}
	return nil
}

// GetRoomState 读取房间状态。状态 key 不存在视为房间不存在。
func (r *RedisStateRepository) GetRoomState(ctx context.Context, roomID string) (*repository.RoomState, error) {
	pipe := r.client.Pipeline()
	statusCmd := pipe.Get(ctx, sessionStatusKey(roomID))
	deckCmd := pipe.Get(ctx, deckIDKey(roomID))
	pagesCmd := pipe.Get(ctx, totalPageKey(roomID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: failed to get room state for room %s: %w", roomID, err)
	}
	status, err := statusCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	state := &repository.RoomState{Status: domain.SessionStatus(status)}
	state.DeckID, _ = deckCmd.Result()
	if pages, err := pagesCmd.Int(); err == nil {
		state.TotalPages = pages
	}
	return state, nil
}

// SetSessionStatus 修改状态并保留原有 TTL
func (r *RedisStateRepository) SetSessionStatus(ctx context.Context, roomID string, status domain.SessionStatus) error {
	key := sessionStatusKey(roomID)
	err := r.client.SetArgs(ctx, key, string(status), redis.SetArgs{KeepTTL: true}).Err()
	if err != nil {
		return fmt.Errorf("redis: failed to set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStateRepository) GetSessionStatus(ctx context.Context, roomID string) (domain.SessionStatus, error) {
	key := sessionStatusKey(roomID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	return domain.SessionStatus(val), nil
}

// RoomTTL 返回房间状态 key 的剩余 TTL
func (r *RedisStateRepository) RoomTTL(ctx context.Context, roomID string) (time.Duration, error) {
	key := sessionStatusKey(roomID)
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to pttl %s: %w", key, err)
	}
	if ttl == -2 {
		return 0, repository.ErrNotFound
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisStateRepository) GetTotalPages(ctx context.Context, roomID string) (int, error) {
	n, err := r.getInt(ctx, totalPageKey(roomID))
	return int(n), err
}

func (r *RedisStateRepository) SetPresenterPage(ctx context.Context, roomID string, page int) error {
	key := presenterPageKey(roomID)
	if err := r.client.Set(ctx, key, page, r.roomTTL).Err(); err != nil {
		return fmt.Errorf("redis: failed to set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStateRepository) GetPresenterPage(ctx context.Context, roomID string) (int, error) {
	n, err := r.getInt(ctx, presenterPageKey(roomID))
	return int(n), err
}

// AdvanceMaxSlide 原子地推进已展示的最大页
func (r *RedisStateRepository) AdvanceMaxSlide(ctx context.Context, roomID string, page int) (bool, error) {
	key := maxSlideKey(roomID)
	n, err := advanceMaxScript.Run(ctx, r.client, []string{key}, page, ttlMillis(r.roomTTL)).Int()
	if err != nil {
		return false, fmt.Errorf("redis: failed to advance %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *RedisStateRepository) GetMaxSlide(ctx context.Context, roomID string) (int, error) {
	n, err := r.getIntOrZero(ctx, maxSlideKey(roomID))
	return int(n), err
}

func (r *RedisStateRepository) SetSlideUnlock(ctx context.Context, roomID string, unlocked bool) error {
	key := slideUnlockKey(roomID)
	if err := r.client.Set(ctx, key, strconv.FormatBool(unlocked), r.roomTTL).Err(); err != nil {
		return fmt.Errorf("redis: failed to set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStateRepository) GetSlideUnlock(ctx context.Context, roomID string) (bool, error) {
	key := slideUnlockKey(roomID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	unlocked, _ := strconv.ParseBool(val)
	return unlocked, nil
}

func (r *RedisStateRepository) SetPresenterKeyHash(ctx context.Context, roomID, hash string, ttl time.Duration) error {
	key := presenterKeyHashKey(roomID)
	if err := r.client.Set(ctx, key, hash, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStateRepository) GetPresenterKeyHash(ctx context.Context, roomID string) (string, error) {
	key := presenterKeyHashKey(roomID)
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisStateRepository) IncrementAudienceEntered(ctx context.Context, roomID string) (int64, error) {
	key := enterAudienceKey(roomID)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	r.expire(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: failed to incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (r *RedisStateRepository) GetAudienceEntered(ctx context.Context, roomID string) (int64, error) {
	return r.getIntOrZero(ctx, enterAudienceKey(roomID))
}

// CleanupRoom 删除房间命名空间下的所有 key 以及邀请码。
func (r *RedisStateRepository) CleanupRoom(ctx context.Context, roomID, code string) error {
	logCtx := logrus.WithField("room_id", roomID)

	keys, err := r.scanKeys(ctx, roomPrefix(roomID)+"*")
	if err != nil {
		return err
	}
	rateKeys, err := r.scanKeys(ctx, "rate:"+roomID+":*")
	if err != nil {
		return err
	}
	keys = append(keys, rateKeys...)
	keys = append(keys, questionEventsKey(roomID))
	if code != "" {
		keys = append(keys, codeKey(code))
	}

	const batch = 500
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("redis: failed to delete keys for room %s: %w", roomID, err)
		}
	}
	logCtx.Infof("redis: cleaned up %d keys", len(keys))
	return nil
}

func (r *RedisStateRepository) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to scan %s: %w", pattern, err)
	}
	return keys, nil
}
