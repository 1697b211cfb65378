package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// ReportScheduler 异步执行报告快照的 upsert。
type ReportScheduler interface {
	ScheduleSnapshot(ctx context.Context, report *domain.Report) error
}

// ReportService 计算实时报告，并在计算时顺带调度快照持久化。
type ReportService struct {
	aggregator *LiveAggregator
	questions  repository.QuestionStore
	events     repository.EventLog
	reports    repository.ReportRepository
	scheduler  ReportScheduler
}

func NewReportService(aggregator *LiveAggregator, questions repository.QuestionStore, events repository.EventLog,
	reports repository.ReportRepository, scheduler ReportScheduler) *ReportService {
	if aggregator == nil || questions == nil || events == nil || reports == nil || scheduler == nil {
		panic("all dependencies are required for ReportService")
	}
	return &ReportService{
		aggregator: aggregator,
		questions:  questions,
		events:     events,
		reports:    reports,
		scheduler:  scheduler,
	}
}

// Top 返回表情总数、问题总数与焦点页，并调度一次快照。
func (s *ReportService) Top(ctx context.Context, roomID string) (*domain.ReportTop, error) {
	top, err := s.computeTop(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.scheduleSnapshot(ctx, roomID, top)
	return top, nil
}

// Snapshot 计算当前聚合值并调度 upsert。房间结束时调用。
func (s *ReportService) Snapshot(ctx context.Context, roomID string) error {
	top, err := s.computeTop(ctx, roomID)
	if err != nil {
		return err
	}
	s.scheduleSnapshot(ctx, roomID, top)
	return nil
}

func (s *ReportService) computeTop(ctx context.Context, roomID string) (*domain.ReportTop, error) {
	emojis, err := s.events.ReactionCount(ctx, roomID)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	questions, err := s.questions.QuestionCount(ctx, roomID)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	focus, err := s.aggregator.FocusSlide(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &domain.ReportTop{TotalEmoji: emojis, TotalQuestion: questions, FocusSlide: focus}, nil
}

// scheduleSnapshot 构造快照并交给调度器；失败只记录日志，不影响调用方。
func (s *ReportService) scheduleSnapshot(ctx context.Context, roomID string, top *domain.ReportTop) {
	logCtx := logrus.WithField("room_id", roomID)

	report := &domain.Report{
		RoomID:         roomID,
		EmojiCount:     top.TotalEmoji,
		QuestionCount:  top.TotalQuestion,
		AttentionSlide: top.FocusSlide,
	}
	if hotspots, err := s.aggregator.ReactionHotspots(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to compute reaction hotspots for snapshot")
	} else {
		report.PopularEmoji = marshalOptional(hotspots)
	}
	if most, err := s.aggregator.MostRevisit(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to compute revisit summary for snapshot")
	} else {
		report.Revisit = marshalOptional(most)
	}

	if err := s.scheduler.ScheduleSnapshot(ctx, report); err != nil {
		logCtx.WithError(err).Error("Failed to schedule report snapshot")
		return
	}
	logCtx.Debug("Report snapshot scheduled")
}

func marshalOptional(v interface{}) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// Get 返回已持久化的报告快照。
func (s *ReportService) Get(ctx context.Context, roomID string) (*domain.Report, error) {
	report, err := s.reports.FindByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			return nil, ErrReportNotFound.Wrap(err)
		}
		return nil, ErrInternal.Wrap(err)
	}
	return report, nil
}

// Revisits, MostRevisit 与 ReactionHotspots 直接代理给 LiveAggregator。

func (s *ReportService) Revisits(ctx context.Context, roomID string) ([]domain.SlideRevisit, error) {
	return s.aggregator.Revisits(ctx, roomID)
}

func (s *ReportService) MostRevisit(ctx context.Context, roomID string) (*domain.MostRevisit, error) {
	return s.aggregator.MostRevisit(ctx, roomID)
}

func (s *ReportService) ReactionHotspots(ctx context.Context, roomID string) ([]domain.ReactionHotspot, error) {
	return s.aggregator.ReactionHotspots(ctx, roomID)
}
