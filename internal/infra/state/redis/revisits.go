package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// MoveAudience 在页集合之间移动观众
func (r *RedisStateRepository) MoveAudience(ctx context.Context, roomID, audienceID string, before, after int) error {
	afterKey := slideAudienceKey(roomID, after)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if before > 0 && before != after {
			pipe.SRem(ctx, slideAudienceKey(roomID, before), audienceID)
		}
		pipe.SAdd(ctx, afterKey, audienceID)
		r.expire(ctx, pipe, afterKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to move audience %s to slide %d in room %s: %w", audienceID, after, roomID, err)
	}
	return nil
}

// RecordRevisit 累加页回访数、个人回访数，并记录去重回访者
func (r *RedisStateRepository) RecordRevisit(ctx context.Context, roomID, audienceID string, slide int) error {
	countKey := revisitKey(roomID, slide)
	userKey := revisitUserKey(roomID, slide, audienceID)
	usersKey := revisitUsersKey(roomID, slide)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, countKey)
		pipe.Incr(ctx, userKey)
		pipe.SAdd(ctx, usersKey, audienceID)
		r.expire(ctx, pipe, countKey, userKey, usersKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to record revisit of slide %d in room %s: %w", slide, roomID, err)
	}
	return nil
}

func (r *RedisStateRepository) GetRevisits(ctx context.Context, roomID string, totalPages int) ([]int64, error) {
	revisits := make([]int64, totalPages)
	if totalPages <= 0 {
		return revisits, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, totalPages)
	for i := range cmds {
		cmds[i] = pipe.Get(ctx, revisitKey(roomID, i+1))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: failed to read revisits for room %s: %w", roomID, err)
	}
	for i, cmd := range cmds {
		if n, err := strconv.ParseInt(cmd.Val(), 10, 64); err == nil {
			revisits[i] = n
		}
	}
	return revisits, nil
}

// RevisitUsers 统计去重回访者，以及个人回访次数不少于 minCount 的人数
func (r *RedisStateRepository) RevisitUsers(ctx context.Context, roomID string, slide int, minCount int64) (int64, int64, error) {
	usersKey := revisitUsersKey(roomID, slide)
	users, err := r.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: failed to read %s: %w", usersKey, err)
	}
	if len(users) == 0 {
		return 0, 0, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(users))
	for i, user := range users {
		cmds[i] = pipe.Get(ctx, revisitUserKey(roomID, slide, user))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("redis: failed to read revisit users for room %s slide %d: %w", roomID, slide, err)
	}
	var multi int64
	for _, cmd := range cmds {
		if n, err := strconv.ParseInt(cmd.Val(), 10, 64); err == nil && n >= minCount {
			multi++
		}
	}
	return int64(len(users)), multi, nil
}

func (r *RedisStateRepository) SlideAudienceCounts(ctx context.Context, roomID string, totalPages int) ([]int64, error) {
	counts := make([]int64, totalPages)
	if totalPages <= 0 {
		return counts, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, totalPages)
	for i := range cmds {
		cmds[i] = pipe.SCard(ctx, slideAudienceKey(roomID, i+1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: failed to count slide audience for room %s: %w", roomID, err)
	}
	for i, cmd := range cmds {
		counts[i] = cmd.Val()
	}
	return counts, nil
}
