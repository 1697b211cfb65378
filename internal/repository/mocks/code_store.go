// Package mocks 提供 repository 接口的 testify Mock 实现，供 service 层单元测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"live-session/internal/repository"
)

// CodeStore 是 repository.CodeStore 的 Mock
type CodeStore struct {
	mock.Mock
}

var _ repository.CodeStore = (*CodeStore)(nil)

func (m *CodeStore) SetCodeIfAbsent(ctx context.Context, code, value string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, code, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *CodeStore) GetCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *CodeStore) CompareAndSwapCode(ctx context.Context, code, expected, value string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, code, expected, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *CodeStore) DeleteCodeIfValue(ctx context.Context, code, expected string) (bool, error) {
	args := m.Called(ctx, code, expected)
	return args.Bool(0), args.Error(1)
}

func (m *CodeStore) ExpireCode(ctx context.Context, code string, ttl time.Duration) error {
	args := m.Called(ctx, code, ttl)
	return args.Error(0)
}

func (m *CodeStore) SetRoomCode(ctx context.Context, roomID, code string, ttl time.Duration) error {
	args := m.Called(ctx, roomID, code, ttl)
	return args.Error(0)
}

func (m *CodeStore) GetRoomCode(ctx context.Context, roomID string) (string, error) {
	args := m.Called(ctx, roomID)
	return args.String(0), args.Error(1)
}
