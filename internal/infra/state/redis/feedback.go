package redisstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// recordReactionScript 登记反应者、累加计数，首次出现的表情追加到顺序列表。
// 返回该表情的去重反应者数。
var recordReactionScript = redis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
local c = redis.call('HINCRBY', KEYS[2], ARGV[2], 1)
if c == 1 then
	redis.call('RPUSH', KEYS[3], ARGV[2])
end
if tonumber(ARGV[3]) > 0 then
	for i = 1, 3 do
		redis.call('PEXPIRE', KEYS[i], ARGV[3])
	end
end
return redis.call('SCARD', KEYS[1])
`)

// advanceFeedbackScript 仅当状态等于 ARGV[1] 时写入新状态。
var advanceFeedbackScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	cur = 'NONE'
end
if cur ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'message', ARGV[3], 'mostPeopleCounts', ARGV[4], 'emoji', ARGV[5])
if tonumber(ARGV[6]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[6])
end
return 1
`)

// InitFeedback 为每一页写入初始的 NONE 状态
func (r *RedisStateRepository) InitFeedback(ctx context.Context, roomID string, totalPages int, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for slide := 1; slide <= totalPages; slide++ {
			key := feedbackKey(roomID, slide)
			pipe.HSet(ctx, key, map[string]interface{}{
				"status":           string(domain.ThresholdNone),
				"message":          domain.DefaultFeedbackMessage,
				"mostPeopleCounts": 0,
			})
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to init live feedback for room %s: %w", roomID, err)
	}
	return nil
}

// RecordReaction 原子地更新去重反应者、计数与首次出现顺序，然后读取该页计数。
func (r *RedisStateRepository) RecordReaction(ctx context.Context, roomID string, slide, emoji int, audienceID string) (*repository.ReactionTally, error) {
	keys := []string{
		feedbackReactorsKey(roomID, slide, emoji),
		feedbackCountsKey(roomID, slide),
		feedbackOrderKey(roomID, slide),
	}
	distinct, err := recordReactionScript.Run(ctx, r.client, keys, audienceID, emojiField(emoji), ttlMillis(r.roomTTL)).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to record reaction for room %s slide %d: %w", roomID, slide, err)
	}

	pipe := r.client.Pipeline()
	countsCmd := pipe.HGetAll(ctx, keys[1])
	orderCmd := pipe.LRange(ctx, keys[2], 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: failed to read emoji counts for room %s slide %d: %w", roomID, slide, err)
	}

	counts := countsCmd.Val()
	tally := &repository.ReactionTally{DistinctReactors: distinct}
	for _, field := range orderCmd.Val() {
		e, ok := parseEmojiField(field)
		if !ok {
			continue
		}
		n, _ := strconv.ParseInt(counts[field], 10, 64)
		tally.Counts = append(tally.Counts, domain.EmojiCount{Emoji: e, Count: n})
	}
	return tally, nil
}

func (r *RedisStateRepository) GetFeedback(ctx context.Context, roomID string, slide int) (*domain.ThresholdState, error) {
	key := feedbackKey(roomID, slide)
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get %s: %w", key, err)
	}
	state := &domain.ThresholdState{
		Slide:   slide,
		Status:  domain.ThresholdNone,
		Message: domain.DefaultFeedbackMessage,
	}
	if s, ok := fields["status"]; ok && s != "" {
		state.Status = domain.ThresholdStatus(s)
	}
	if m, ok := fields["message"]; ok {
		state.Message = m
	}
	state.MostPeopleCount, _ = strconv.ParseInt(fields["mostPeopleCounts"], 10, 64)
	state.Emoji, _ = strconv.Atoi(fields["emoji"])
	return state, nil
}

// AdvanceFeedback 比较并设置检测状态，保证状态只前进一次。
func (r *RedisStateRepository) AdvanceFeedback(ctx context.Context, roomID string, from domain.ThresholdStatus, next domain.ThresholdState) (bool, error) {
	key := feedbackKey(roomID, next.Slide)
	n, err := advanceFeedbackScript.Run(ctx, r.client, []string{key},
		string(from), string(next.Status), next.Message, next.MostPeopleCount, next.Emoji, ttlMillis(r.roomTTL),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: failed to advance %s: %w", key, err)
	}
	return n == 1, nil
}
