package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"live-session/internal/repository"
)

// PresenceStore 是 repository.PresenceStore 的 Mock
type PresenceStore struct {
	mock.Mock
}

var _ repository.PresenceStore = (*PresenceStore)(nil)

func (m *PresenceStore) AddOnline(ctx context.Context, roomID, audienceID string) error {
	args := m.Called(ctx, roomID, audienceID)
	return args.Error(0)
}

func (m *PresenceStore) RemoveOnline(ctx context.Context, roomID, audienceID string) error {
	args := m.Called(ctx, roomID, audienceID)
	return args.Error(0)
}

func (m *PresenceStore) OnlineCount(ctx context.Context, roomID string) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}
