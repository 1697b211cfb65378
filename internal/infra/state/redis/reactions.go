package redisstate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
)

// maxReactions 是表情日志的最大长度
const maxReactions = 10000

func (r *RedisStateRepository) AppendReaction(ctx context.Context, roomID string, reaction domain.Reaction) (string, error) {
	key := stickersKey(roomID)
	var add *redis.StringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		add = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: key,
			MaxLen: maxReactions,
			Values: map[string]interface{}{
				"emoji":      reaction.Emoji,
				"audienceId": reaction.AudienceID,
				"createdAt":  reaction.CreatedAt,
				"x":          reaction.X,
				"y":          reaction.Y,
				"slide":      reaction.Slide,
			},
		})
		r.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis: failed to append to %s: %w", key, err)
	}
	return add.Val(), nil
}

// ListReactions 读取整条表情日志，跳过无法解析的条目
func (r *RedisStateRepository) ListReactions(ctx context.Context, roomID string) ([]domain.Reaction, error) {
	key := stickersKey(roomID)
	msgs, err := r.client.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to range %s: %w", key, err)
	}
	reactions := make([]domain.Reaction, 0, len(msgs))
	for _, msg := range msgs {
		reaction, err := reactionFromValues(msg.Values)
		if err != nil {
			logrus.WithField("room_id", roomID).Warnf("redis: skipping reaction %s: %v", msg.ID, err)
			continue
		}
		reactions = append(reactions, reaction)
	}
	return reactions, nil
}

func (r *RedisStateRepository) ReactionCount(ctx context.Context, roomID string) (int64, error) {
	key := stickersKey(roomID)
	n, err := r.client.XLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to xlen %s: %w", key, err)
	}
	return n, nil
}

func reactionFromValues(values map[string]interface{}) (domain.Reaction, error) {
	str := func(name string) string {
		s, _ := values[name].(string)
		return s
	}
	emoji, err := strconv.Atoi(str("emoji"))
	if err != nil {
		return domain.Reaction{}, fmt.Errorf("emoji: %w", err)
	}
	slide, err := strconv.Atoi(str("slide"))
	if err != nil {
		return domain.Reaction{}, fmt.Errorf("slide: %w", err)
	}
	reaction := domain.Reaction{
		Emoji:      emoji,
		Slide:      slide,
		AudienceID: str("audienceId"),
	}
	reaction.X, _ = strconv.ParseFloat(str("x"), 64)
	reaction.Y, _ = strconv.ParseFloat(str("y"), 64)
	reaction.CreatedAt, _ = strconv.ParseInt(str("createdAt"), 10, 64)
	return reaction, nil
}
