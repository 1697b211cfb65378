package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// CreateRoomInput 是创建房间的参数。
type CreateRoomInput struct {
	DeckID     string
	TotalPages int
}

// PresenterCredentials 是讲者凭证。PresenterKey 只在创建或轮换时返回一次。
type PresenterCredentials struct {
	Token        string    `json:"presenterToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	PresenterKey string    `json:"presenterKey,omitempty"`
}

// CreatedRoom 是 CreateRoom 的结果。
type CreatedRoom struct {
	Room      domain.Room          `json:"room"`
	Presenter PresenterCredentials `json:"presenter"`
}

// JoinedRoom 是观众加入房间的结果。
type JoinedRoom struct {
	RoomID     string    `json:"roomId"`
	AudienceID string    `json:"audienceId"`
	Token      string    `json:"audienceToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TotalPages int       `json:"totalPages"`
}

// RoomService 编排房间生命周期：创建、加入、开始、结束与清理。
type RoomService struct {
	registry  *SessionRegistry
	rooms     repository.RoomStateStore
	feedback  repository.FeedbackStore
	reportsDB repository.ReportRepository
	reports   *ReportService
	tokens    *TokenService
	roomTTL   time.Duration
}

// RoomServiceDeps 汇总 RoomService 的依赖。
type RoomServiceDeps struct {
	Registry  *SessionRegistry
	Rooms     repository.RoomStateStore
	Feedback  repository.FeedbackStore
	ReportsDB repository.ReportRepository
	Reports   *ReportService
	Tokens    *TokenService
	RoomTTL   time.Duration
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(deps RoomServiceDeps) *RoomService {
	if deps.Registry == nil || deps.Rooms == nil || deps.Feedback == nil ||
		deps.ReportsDB == nil || deps.Reports == nil || deps.Tokens == nil {
		panic("all dependencies are required for RoomService")
	}
	if deps.RoomTTL <= 0 {
		deps.RoomTTL = 24 * time.Hour
	}
	return &RoomService{
		registry:  deps.Registry,
		rooms:     deps.Rooms,
		feedback:  deps.Feedback,
		reportsDB: deps.ReportsDB,
		reports:   deps.Reports,
		tokens:    deps.Tokens,
		roomTTL:   deps.RoomTTL,
	}
}

// CreateRoom 创建房间：预留邀请码 → 写入房间状态 → 生成讲者密钥与凭证 → 确认邀请码。
// 确认之前的任何失败都会释放预留的邀请码。
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (result *CreatedRoom, err error) {
	if in.TotalPages <= 0 {
		return nil, ErrInvalidInput.WithMessage("totalPages must be positive")
	}
	roomID := uuid.NewString()
	logCtx := logrus.WithField("room_id", roomID)

	code, token, err := s.registry.ReserveCode(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to reserve invite code")
		return nil, err
	}
	logCtx = logCtx.WithField("code", code)
	defer func() {
		if err == nil {
			return
		}
		// 使用独立 context，调用方取消时也要释放
		if _, relErr := s.registry.Release(context.Background(), code, token); relErr != nil {
			logCtx.WithError(relErr).Warn("Failed to release invite code after create failure")
		}
	}()

	state := repository.RoomState{Status: domain.StatusWaiting, DeckID: in.DeckID, TotalPages: in.TotalPages}
	if err = s.rooms.InitRoomState(ctx, roomID, state, s.roomTTL); err != nil {
		logCtx.WithError(err).Error("Failed to init room state")
		return nil, ErrStore.Wrap(err)
	}
	if err = s.feedback.InitFeedback(ctx, roomID, in.TotalPages, s.roomTTL); err != nil {
		logCtx.WithError(err).Error("Failed to init live feedback")
		return nil, ErrStore.Wrap(err)
	}

	creds, err := s.issuePresenterKey(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to issue presenter credentials")
		return nil, err
	}

	if err = s.registry.Confirm(ctx, code, token, roomID); err != nil {
		logCtx.WithError(err).Error("Failed to confirm invite code")
		return nil, err
	}

	logCtx.Info("Room created successfully")
	return &CreatedRoom{
		Room: domain.Room{
			ID:         roomID,
			Code:       code,
			Status:     domain.StatusWaiting,
			DeckID:     in.DeckID,
			TotalPages: in.TotalPages,
			ExpiresAt:  time.Now().Add(s.roomTTL),
		},
		Presenter: *creds,
	}, nil
}

// issuePresenterKey 生成新的讲者密钥，保存其 bcrypt 哈希并签发讲者凭证。
func (s *RoomService) issuePresenterKey(ctx context.Context, roomID string) (*PresenterCredentials, error) {
	key, err := randomKey()
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrInternal.Wrap(fmt.Errorf("failed to hash presenter key: %w", err))
	}
	ttl := s.roomTTL
	if remaining, err := s.rooms.RoomTTL(ctx, roomID); err == nil && remaining > 0 {
		ttl = remaining
	}
	if err := s.rooms.SetPresenterKeyHash(ctx, roomID, string(hash), ttl); err != nil {
		return nil, ErrStore.Wrap(err)
	}
	tokenStr, expiresAt, err := s.tokens.IssuePresenter(roomID)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	return &PresenterCredentials{Token: tokenStr, ExpiresAt: expiresAt, PresenterKey: key}, nil
}

// JoinRoom 通过邀请码加入房间，分配新的观众 id 并签发观众凭证。
func (s *RoomService) JoinRoom(ctx context.Context, code string) (*JoinedRoom, error) {
	logCtx := logrus.WithField("code", code)

	roomID, err := s.registry.ResolveRoomID(ctx, code)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to resolve invite code")
		return nil, err
	}
	state, err := s.rooms.GetRoomState(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	if state.Status == domain.StatusEnded {
		return nil, ErrInvalidTransition.WithMessage("session has ended")
	}

	audienceID := uuid.NewString()
	tokenStr, expiresAt, err := s.tokens.IssueAudience(roomID, audienceID)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	if _, err := s.rooms.IncrementAudienceEntered(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to count audience entry")
	}

	logCtx.WithFields(logrus.Fields{"room_id": roomID, "audience_id": audienceID}).Info("Audience joined room")
	return &JoinedRoom{
		RoomID:     roomID,
		AudienceID: audienceID,
		Token:      tokenStr,
		ExpiresAt:  expiresAt,
		TotalPages: state.TotalPages,
	}, nil
}

// GetRoom 返回房间信息。
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	state, err := s.rooms.GetRoomState(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	room := &domain.Room{
		ID:         roomID,
		Status:     state.Status,
		DeckID:     state.DeckID,
		TotalPages: state.TotalPages,
	}
	if code, err := s.registry.RoomCode(ctx, roomID); err == nil {
		room.Code = code
	}
	if ttl, err := s.rooms.RoomTTL(ctx, roomID); err == nil && ttl > 0 {
		room.ExpiresAt = time.Now().Add(ttl)
	}
	return room, nil
}

// StartSession waiting → live。已经是 live 时不做任何事。
func (s *RoomService) StartSession(ctx context.Context, roomID string) error {
	status, err := s.rooms.GetSessionStatus(ctx, roomID)
	if err != nil {
		return mapRepoError(err, ErrRoomNotFound)
	}
	switch status {
	case domain.StatusLive:
		return nil
	case domain.StatusEnded:
		return ErrInvalidTransition.WithMessage("session has already ended")
	}
	if err := s.rooms.SetSessionStatus(ctx, roomID, domain.StatusLive); err != nil {
		return ErrStore.Wrap(err)
	}
	logrus.WithField("room_id", roomID).Info("Session started")
	return nil
}

// EndSession 将房间置为 ended，缩短邀请码 TTL，并调度报告快照。
func (s *RoomService) EndSession(ctx context.Context, roomID string) error {
	logCtx := logrus.WithField("room_id", roomID)
	status, err := s.rooms.GetSessionStatus(ctx, roomID)
	if err != nil {
		return mapRepoError(err, ErrRoomNotFound)
	}
	if status == domain.StatusEnded {
		return nil
	}
	if err := s.rooms.SetSessionStatus(ctx, roomID, domain.StatusEnded); err != nil {
		return ErrStore.Wrap(err)
	}
	if err := s.registry.ShortenTTL(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to shorten invite code ttl")
	}
	if err := s.reports.Snapshot(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to snapshot report on session end")
	}
	logCtx.Info("Session ended")
	return nil
}

// Teardown 删除房间命名空间下的所有 key、邀请码以及报告快照。
func (s *RoomService) Teardown(ctx context.Context, roomID string) error {
	logCtx := logrus.WithField("room_id", roomID)

	code, err := s.registry.RoomCode(ctx, roomID)
	if err != nil && !errors.Is(err, ErrCodeNotFound) {
		return err
	}
	if err := s.rooms.CleanupRoom(ctx, roomID, code); err != nil {
		logCtx.WithError(err).Error("Failed to clean up room state")
		return ErrStore.Wrap(err)
	}
	if err := s.reportsDB.DeleteByRoomID(ctx, roomID); err != nil {
		logCtx.WithError(err).Error("Failed to delete report snapshot")
		return ErrInternal.Wrap(err)
	}
	logCtx.Info("Room torn down")
	return nil
}

// RefreshPresenterToken 校验讲者密钥并签发新凭证；rotate 为 true 时同时轮换密钥。
func (s *RoomService) RefreshPresenterToken(ctx context.Context, roomID, presenterKey string, rotate bool) (*PresenterCredentials, error) {
	logCtx := logrus.WithField("room_id", roomID)

	hash, err := s.rooms.GetPresenterKeyHash(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(presenterKey)) != nil {
		logCtx.Warn("Presenter key mismatch")
		return nil, ErrPresenterKeyWrong
	}
	if rotate {
		logCtx.Info("Rotating presenter key")
		return s.issuePresenterKey(ctx, roomID)
	}
	tokenStr, expiresAt, err := s.tokens.IssuePresenter(roomID)
	if err != nil {
		return nil, ErrInternal.Wrap(err)
	}
	return &PresenterCredentials{Token: tokenStr, ExpiresAt: expiresAt}, nil
}

// requireOpenRoom 房间不存在或已结束时拒绝写入，避免已清理的命名空间被重新创建。
func requireOpenRoom(ctx context.Context, rooms repository.RoomStateStore, roomID string) error {
	status, err := rooms.GetSessionStatus(ctx, roomID)
	if err != nil {
		return mapRepoError(err, ErrRoomNotFound)
	}
	if status == domain.StatusEnded {
		return ErrInvalidTransition.WithMessage("session has ended")
	}
	return nil
}

func randomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
