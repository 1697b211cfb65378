package redisstate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// maxQuestionEvents 是问题事件流的最大长度
const maxQuestionEvents = 10000

// SaveQuestion 在一个 MULTI/EXEC 中写入问题 hash、两个索引并累加问题数。
func (r *RedisStateRepository) SaveQuestion(ctx context.Context, q domain.Question) error {
	hashKey := questionKey(q.RoomID, q.ID)
	pageKey := pageQuestionsKey(q.RoomID, q.Slide)
	roomKey := roomQuestionsKey(q.RoomID)
	countKey := questionCountKey(q.RoomID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, map[string]interface{}{
			"id":         q.ID,
			"roomId":     q.RoomID,
			"slide":      q.Slide,
			"audienceId": q.AudienceID,
			"content":    q.Content,
			"ts":         q.Ts,
		})
		member := &redis.Z{Score: float64(q.Ts), Member: q.ID}
		pipe.ZAdd(ctx, pageKey, member)
		pipe.ZAdd(ctx, roomKey, member)
		pipe.Incr(ctx, countKey)
		r.expire(ctx, pipe, hashKey, pageKey, roomKey, countKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to save question %s for room %s: %w", q.ID, q.RoomID, err)
	}
	return nil
}

// ListQuestionIDs 读取 score 严格大于 FromTs 的问题 id
func (r *RedisStateRepository) ListQuestionIDs(ctx context.Context, roomID string, query repository.QuestionQuery) ([]string, error) {
	key := roomQuestionsKey(roomID)
	if query.Slide != nil {
		key = pageQuestionsKey(roomID, *query.Slide)
	}
	min := "-inf"
	if query.FromTs != nil {
		min = "(" + strconv.FormatInt(*query.FromTs, 10)
	}
	ids, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to range %s: %w", key, err)
	}
	return ids, nil
}

// GetQuestions 批量读取问题 hash；缺失的 hash 视为尚不可见。
func (r *RedisStateRepository) GetQuestions(ctx context.Context, roomID string, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, questionKey(roomID, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: failed to load questions for room %s: %w", roomID, err)
	}

	questions := make([]domain.Question, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			logrus.WithFields(logrus.Fields{"room_id": roomID, "question_id": ids[i]}).
				Debug("redis: question hash not visible yet, skipping")
			continue
		}
		q, err := questionFromHash(fields)
		if err != nil {
			logrus.WithField("room_id", roomID).Warnf("redis: malformed question hash %s: %v", ids[i], err)
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func questionFromHash(fields map[string]string) (domain.Question, error) {
	slide, err := strconv.Atoi(fields["slide"])
	if err != nil {
		return domain.Question{}, fmt.Errorf("slide: %w", err)
	}
	ts, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return domain.Question{}, fmt.Errorf("ts: %w", err)
	}
	return domain.Question{
		ID:         fields["id"],
		RoomID:     fields["roomId"],
		Slide:      slide,
		AudienceID: fields["audienceId"],
		Content:    fields["content"],
		Ts:         ts,
	}, nil
}

// CountQuestionsBySlide 扫描 room:<roomId>:page:*:questions 并统计每页问题数
func (r *RedisStateRepository) CountQuestionsBySlide(ctx context.Context, roomID string) (map[int]int64, error) {
	keys, err := r.scanKeys(ctx, roomPrefix(roomID)+"page:*:questions")
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int64, len(keys))
	if len(keys) == 0 {
		return counts, nil
	}

	pipe := r.client.Pipeline()
	cmds := make(map[int]*redis.IntCmd, len(keys))
	for _, key := range keys {
		slide, ok := slideFromPageQuestionsKey(roomID, key)
		if !ok {
			logrus.WithField("room_id", roomID).Warnf("redis: unexpected question index key %s", key)
			continue
		}
		cmds[slide] = pipe.ZCard(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: failed to count questions for room %s: %w", roomID, err)
	}
	for slide, cmd := range cmds {
		counts[slide] = cmd.Val()
	}
	return counts, nil
}

func (r *RedisStateRepository) QuestionCount(ctx context.Context, roomID string) (int64, error) {
	return r.getIntOrZero(ctx, questionCountKey(roomID))
}

// AppendQuestionEvent 追加问题事件并裁剪到 maxQuestionEvents
func (r *RedisStateRepository) AppendQuestionEvent(ctx context.Context, q domain.Question) error {
	key := questionEventsKey(q.RoomID)
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: maxQuestionEvents,
		Values: map[string]interface{}{
			"type":       "question-created",
			"roomId":     q.RoomID,
			"id":         q.ID,
			"slide":      q.Slide,
			"audienceId": q.AudienceID,
			"ts":         q.Ts,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: failed to append to %s: %w", key, err)
	}
	return nil
}
