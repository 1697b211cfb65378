package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"live-session/internal/repository"
)

// CounterStore 是 repository.CounterStore 的 Mock
type CounterStore struct {
	mock.Mock
}

var _ repository.CounterStore = (*CounterStore)(nil)

func (m *CounterStore) IncrementRate(ctx context.Context, roomID, actorID, action string, window time.Duration) (int64, error) {
	args := m.Called(ctx, roomID, actorID, action, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CounterStore) IncrementKey(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Error(1)
}
