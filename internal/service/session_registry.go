package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

const (
	codeLength         = 6
	maxReserveAttempts = 8
)

// SessionRegistry 管理邀请码的两阶段生命周期：reserve → confirm → release/expire。
type SessionRegistry struct {
	codes    repository.CodeStore
	codeTTL  time.Duration
	graceTTL time.Duration
	generate func() (string, error)
}

// NewSessionRegistry 创建 SessionRegistry。codeTTL 用于预留与确认，graceTTL 用于房间结束后。
func NewSessionRegistry(codes repository.CodeStore, codeTTL, graceTTL time.Duration) *SessionRegistry {
	if codes == nil {
		panic("CodeStore cannot be nil for SessionRegistry")
	}
	if graceTTL <= 0 {
		graceTTL = time.Hour
	}
	return &SessionRegistry{
		codes:    codes,
		codeTTL:  codeTTL,
		graceTTL: graceTTL,
		generate: randomNumericCode,
	}
}

// ReserveCode 生成随机邀请码并以 SETNX 预留，冲突时最多重试 maxReserveAttempts 次。
func (s *SessionRegistry) ReserveCode(ctx context.Context, roomID string) (string, string, error) {
	logCtx := logrus.WithField("room_id", roomID)
	token := uuid.NewString()

	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", "", ErrInternal.Wrap(err)
		}
		ok, err := s.codes.SetCodeIfAbsent(ctx, code, reservedValue(roomID, token), s.codeTTL)
		if err != nil {
			logCtx.WithError(err).Error("Failed to reserve invite code")
			return "", "", ErrStore.Wrap(err)
		}
		if ok {
			logCtx.WithField("code", code).Debugf("Reserved invite code after %d attempt(s)", attempt)
			return code, token, nil
		}
		logCtx.WithField("code", code).Warnf("Invite code already taken, retrying (attempt %d)", attempt)
	}
	logCtx.Errorf("Failed to reserve a unique invite code after %d attempts", maxReserveAttempts)
	return "", "", ErrCodeExhausted
}

// Confirm 将 RESERVED 的邀请码提升为 CONFIRMED，并记录 roomId → code 的反向映射。
func (s *SessionRegistry) Confirm(ctx context.Context, code, token, roomID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "code": code})

	current, err := s.codes.GetCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Warn("Confirm: reservation not found")
			return ErrReservationInvalid.Wrap(err)
		}
		return ErrStore.Wrap(err)
	}
	res, err := parseCodeValue(code, current)
	if err != nil || res.State != domain.CodeReserved || res.RoomID != roomID || res.Token != token {
		logCtx.Warn("Confirm: reservation does not match")
		return ErrReservationInvalid
	}

	swapped, err := s.codes.CompareAndSwapCode(ctx, code, current, confirmedValue(roomID), s.codeTTL)
	if err != nil {
		return ErrStore.Wrap(err)
	}
	if !swapped {
		logCtx.Warn("Confirm: reservation changed concurrently")
		return ErrReservationInvalid
	}
	if err := s.codes.SetRoomCode(ctx, roomID, code, s.codeTTL); err != nil {
		return ErrStore.Wrap(err)
	}
	logCtx.Info("Invite code confirmed")
	return nil
}

// Release 仅在邀请码仍为 RESERVED 且 token 匹配时删除。返回是否删除。
func (s *SessionRegistry) Release(ctx context.Context, code, token string) (bool, error) {
	current, err := s.codes.GetCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, ErrStore.Wrap(err)
	}
	res, err := parseCodeValue(code, current)
	if err != nil || res.State != domain.CodeReserved || res.Token != token {
		return false, nil
	}
	deleted, err := s.codes.DeleteCodeIfValue(ctx, code, current)
	if err != nil {
		return false, ErrStore.Wrap(err)
	}
	if deleted {
		logrus.WithFields(logrus.Fields{"room_id": res.RoomID, "code": code}).Info("Invite code released")
	}
	return deleted, nil
}

// ShortenTTL 房间结束后把邀请码的过期时间缩短到宽限期。
func (s *SessionRegistry) ShortenTTL(ctx context.Context, roomID string) error {
	code, err := s.codes.GetRoomCode(ctx, roomID)
	if err != nil {
		return mapRepoError(err, ErrCodeNotFound)
	}
	if err := s.codes.ExpireCode(ctx, code, s.graceTTL); err != nil {
		return mapRepoError(err, ErrCodeNotFound)
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "code": code}).Infof("Invite code ttl shortened to %s", s.graceTTL)
	return nil
}

// ResolveRoomID 返回 CONFIRMED 邀请码对应的房间；RESERVED 的邀请码尚不可用。
func (s *SessionRegistry) ResolveRoomID(ctx context.Context, code string) (string, error) {
	current, err := s.codes.GetCode(ctx, code)
	if err != nil {
		return "", mapRepoError(err, ErrCodeNotFound)
	}
	res, err := parseCodeValue(code, current)
	if err != nil {
		logrus.WithField("code", code).WithError(err).Error("Malformed invite code value")
		return "", ErrCodeNotFound.Wrap(err)
	}
	if res.State != domain.CodeConfirmed {
		return "", ErrCodeNotConfirmed
	}
	return res.RoomID, nil
}

// RoomCode 返回房间当前的邀请码。
func (s *SessionRegistry) RoomCode(ctx context.Context, roomID string) (string, error) {
	code, err := s.codes.GetRoomCode(ctx, roomID)
	if err != nil {
		return "", mapRepoError(err, ErrCodeNotFound)
	}
	return code, nil
}

func reservedValue(roomID, token string) string {
	return string(domain.CodeReserved) + ":" + roomID + ":" + token
}

func confirmedValue(roomID string) string {
	return string(domain.CodeConfirmed) + ":" + roomID
}

func parseCodeValue(code, value string) (domain.CodeReservation, error) {
	parts := strings.SplitN(value, ":", 3)
	switch {
	case len(parts) == 3 && parts[0] == string(domain.CodeReserved):
		return domain.CodeReservation{Code: code, RoomID: parts[1], Token: parts[2], State: domain.CodeReserved}, nil
	case len(parts) == 2 && parts[0] == string(domain.CodeConfirmed):
		return domain.CodeReservation{Code: code, RoomID: parts[1], State: domain.CodeConfirmed}, nil
	}
	return domain.CodeReservation{}, fmt.Errorf("malformed code value %q", value)
}

// randomNumericCode 生成 6 位数字邀请码
func randomNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()), nil
}
