package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// MaxQuestionLength 是问题内容的最大字符数
const MaxQuestionLength = 500

// SubmitQuestionInput 是提交问题的参数。Ts 为空时使用服务端时间。
type SubmitQuestionInput struct {
	RoomID     string
	Slide      int
	AudienceID string
	Content    string
	Ts         *int64
}

// QuestionService 负责问题的写入、排序读取与广播。
type QuestionService struct {
	rooms       repository.RoomStateStore
	questions   repository.QuestionStore
	events      repository.EventLog
	limiter     *RateLimiter
	broadcaster Broadcaster
	now         func() time.Time
}

func NewQuestionService(rooms repository.RoomStateStore, questions repository.QuestionStore, events repository.EventLog,
	limiter *RateLimiter, broadcaster Broadcaster) *QuestionService {
	if rooms == nil {
		panic("RoomStateStore cannot be nil for QuestionService")
	}
	if questions == nil || events == nil {
		panic("QuestionStore and EventLog cannot be nil for QuestionService")
	}
	if limiter == nil {
		panic("RateLimiter cannot be nil for QuestionService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for QuestionService")
	}
	return &QuestionService{
		rooms:       rooms,
		questions:   questions,
		events:      events,
		limiter:     limiter,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// Submit 校验房间 → 限流 → 分配 id/ts → 写入 hash 与索引 → 追加事件流 → 广播到 public/presenter 频道。
func (s *QuestionService) Submit(ctx context.Context, in SubmitQuestionInput) (*domain.Question, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": in.RoomID, "audience_id": in.AudienceID})

	content := strings.TrimSpace(in.Content)
	if content == "" || utf8.RuneCountInString(content) > MaxQuestionLength {
		return nil, ErrInvalidInput.WithMessage("question content must be 1-%d characters", MaxQuestionLength)
	}
	if in.Slide <= 0 {
		return nil, ErrInvalidInput.WithMessage("slide must be positive")
	}
	if err := requireOpenRoom(ctx, s.rooms, in.RoomID); err != nil {
		logCtx.WithError(err).Warn("Question rejected: room is not open")
		return nil, err
	}

	if err := s.limiter.Admit(ctx, in.RoomID, in.AudienceID, ActionQuestion); err != nil {
		return nil, err
	}

	q := domain.Question{
		ID:         ulid.Make().String(),
		RoomID:     in.RoomID,
		Slide:      in.Slide,
		AudienceID: in.AudienceID,
		Content:    content,
		Ts:         s.now().UnixMilli(),
	}
	if in.Ts != nil {
		q.Ts = *in.Ts
	}

	if err := s.questions.SaveQuestion(ctx, q); err != nil {
		logCtx.WithError(err).Error("Failed to save question")
		return nil, ErrStore.Wrap(err)
	}
	// 事件流只服务下游消费者，失败不影响问题本身的可见性
	if err := s.events.AppendQuestionEvent(ctx, q); err != nil {
		logCtx.WithError(err).Warn("Failed to append question event")
	}

	event := domain.QuestionCreated(q)
	for _, dest := range []string{PublicTopic(q.RoomID), PresenterTopic(q.RoomID)} {
		if err := s.broadcaster.Broadcast(ctx, dest, event); err != nil {
			logCtx.WithError(err).WithField("destination", dest).Warn("Failed to broadcast question")
		}
	}
	logCtx.WithField("question_id", q.ID).Info("Question submitted")
	return &q, nil
}

// List 返回 ts 严格大于 fromTs 的问题，按 ts 升序。slide 为空时读取全房间索引。
func (s *QuestionService) List(ctx context.Context, roomID string, fromTs *int64, slide *int) ([]domain.Question, error) {
	ids, err := s.questions.ListQuestionIDs(ctx, roomID, repository.QuestionQuery{Slide: slide, FromTs: fromTs})
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	questions, err := s.questions.GetQuestions(ctx, roomID, ids)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	// 不依赖索引返回顺序，按 (ts, id) 排序
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Ts != questions[j].Ts {
			return questions[i].Ts < questions[j].Ts
		}
		return questions[i].ID < questions[j].ID
	})
	return questions, nil
}
