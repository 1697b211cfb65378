package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// ReportRepository 是 repository.ReportRepository 的 Mock
type ReportRepository struct {
	mock.Mock
}

var _ repository.ReportRepository = (*ReportRepository)(nil)

func (m *ReportRepository) Upsert(ctx context.Context, report *domain.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *ReportRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.Report, error) {
	args := m.Called(ctx, roomID)
	// 处理返回 nil 指针的情况
	if r := args.Get(0); r != nil {
		return r.(*domain.Report), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ReportRepository) DeleteByRoomID(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}
