package repository

import (
	"context"

	"live-session/internal/domain"
)

// QuestionQuery 描述 ListQuestionIDs 的过滤条件。
type QuestionQuery struct {
	Slide  *int   // nil 表示全房间索引
	FromTs *int64 // 不包含的下界；nil 表示从头开始
}

// QuestionStore 是问题的内容存储（hash）与有序索引（zset）。
type QuestionStore interface {
	// SaveQuestion 写入问题 hash、按页索引与全房间索引，并累加问题计数。
	SaveQuestion(ctx context.Context, q domain.Question) error

	// ListQuestionIDs 按 ts 升序返回索引中 score > FromTs 的问题 id。
	ListQuestionIDs(ctx context.Context, roomID string, query QuestionQuery) ([]string, error)

	// GetQuestions 批量读取问题。hash 不存在的 id 会被跳过。
	GetQuestions(ctx context.Context, roomID string, ids []string) ([]domain.Question, error)

	// CountQuestionsBySlide 返回各页的问题数，只包含存在索引的页。
	CountQuestionsBySlide(ctx context.Context, roomID string) (map[int]int64, error)

	// QuestionCount 返回 room:<roomId>:questionCount。
	QuestionCount(ctx context.Context, roomID string) (int64, error)
}

// EventLog 是追加写入、按长度裁剪的房间日志。
type EventLog interface {
	// AppendQuestionEvent 写入 stream:question:events:<roomId>。
	AppendQuestionEvent(ctx context.Context, q domain.Question) error

	// AppendReaction 写入 room:<roomId>:stickers，返回日志条目 id。
	AppendReaction(ctx context.Context, roomID string, r domain.Reaction) (string, error)

	// ListReactions 返回房间的全部表情日志。无法解析的条目会被跳过。
	ListReactions(ctx context.Context, roomID string) ([]domain.Reaction, error)

	// ReactionCount 返回表情日志长度。
	ReactionCount(ctx context.Context, roomID string) (int64, error)
}
