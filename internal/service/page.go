package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"live-session/internal/repository"
)

// PageChange 是讲者翻页的广播内容
type PageChange struct {
	ChangedPage int `json:"changedPage"`
}

// UnlockState 是幻灯片解锁选项的广播内容
type UnlockState struct {
	MaxRevealedPage int  `json:"maxRevealedPage"`
	TotalPages      int  `json:"totalPages"`
	RevealAllSlides bool `json:"revealAllSlides"`
	PresenterPage   int  `json:"presenterPage"`
}

// FocusRequest 是讲者请求观众回到当前页的广播内容
type FocusRequest struct {
	Page int `json:"page"`
}

// PageService 处理讲者与观众的翻页，以及解锁、聚焦选项。
type PageService struct {
	rooms       repository.RoomStateStore
	aggregator  *LiveAggregator
	broadcaster Broadcaster
}

func NewPageService(rooms repository.RoomStateStore, aggregator *LiveAggregator, broadcaster Broadcaster) *PageService {
	if rooms == nil || aggregator == nil || broadcaster == nil {
		panic("all dependencies are required for PageService")
	}
	return &PageService{rooms: rooms, aggregator: aggregator, broadcaster: broadcaster}
}

// ChangePresenterPage 记录讲者当前页并广播；首次到达新的最大页时广播解锁状态。
func (s *PageService) ChangePresenterPage(ctx context.Context, roomID string, page int) error {
	if page <= 0 {
		return ErrInvalidInput.WithMessage("page must be positive")
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "page": page})
	if err := requireOpenRoom(ctx, s.rooms, roomID); err != nil {
		return err
	}

	if err := s.rooms.SetPresenterPage(ctx, roomID, page); err != nil {
		return ErrStore.Wrap(err)
	}
	if err := s.broadcaster.Broadcast(ctx, PageChangeTopic(roomID), PageChange{ChangedPage: page}); err != nil {
		logCtx.WithError(err).Warn("Failed to broadcast page change")
	}

	advanced, err := s.rooms.AdvanceMaxSlide(ctx, roomID, page)
	if err != nil {
		return ErrStore.Wrap(err)
	}
	if !advanced {
		return nil
	}
	state, err := s.UnlockState(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.broadcaster.Broadcast(ctx, UnlockTopic(roomID), state); err != nil {
		logCtx.WithError(err).Warn("Failed to broadcast unlock state")
	}
	return nil
}

// ChangeAudiencePage 记录观众翻页与回访。
func (s *PageService) ChangeAudiencePage(ctx context.Context, roomID, audienceID string, before, after int) error {
	if after <= 0 {
		return ErrInvalidInput.WithMessage("page must be positive")
	}
	if err := requireOpenRoom(ctx, s.rooms, roomID); err != nil {
		return err
	}
	return s.aggregator.TrackAudiencePage(ctx, roomID, audienceID, before, after)
}

// SetSlideUnlock 切换“允许观众浏览全部页”选项并广播。
func (s *PageService) SetSlideUnlock(ctx context.Context, roomID string, unlocked bool) (*UnlockState, error) {
	if err := s.rooms.SetSlideUnlock(ctx, roomID, unlocked); err != nil {
		return nil, ErrStore.Wrap(err)
	}
	state, err := s.UnlockState(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.broadcaster.Broadcast(ctx, UnlockTopic(roomID), state); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to broadcast unlock state")
	}
	return state, nil
}

// UnlockState 读取当前的解锁状态。
func (s *PageService) UnlockState(ctx context.Context, roomID string) (*UnlockState, error) {
	total, err := s.rooms.GetTotalPages(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err, ErrTotalPageMissing)
	}
	maxSlide, err := s.rooms.GetMaxSlide(ctx, roomID)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	unlocked, err := s.rooms.GetSlideUnlock(ctx, roomID)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	presenterPage, err := s.rooms.GetPresenterPage(ctx, roomID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, ErrStore.Wrap(err)
	}
	return &UnlockState{
		MaxRevealedPage: maxSlide,
		TotalPages:      total,
		RevealAllSlides: unlocked,
		PresenterPage:   presenterPage,
	}, nil
}

// FocusOn 广播讲者当前页，请观众回到该页。
func (s *PageService) FocusOn(ctx context.Context, roomID string) (int, error) {
	page, err := s.rooms.GetPresenterPage(ctx, roomID)
	if err != nil {
		return 0, mapRepoError(err, ErrPresenterPageMissing)
	}
	if err := s.broadcaster.Broadcast(ctx, FocusOnTopic(roomID), FocusRequest{Page: page}); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to broadcast focus request")
	}
	return page, nil
}
