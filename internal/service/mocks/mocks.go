// Package mocks 提供 service 层出站接口（广播、报告调度）的 testify Mock。
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"live-session/internal/domain"
)

// Broadcaster 是 service.Broadcaster 的 Mock
type Broadcaster struct {
	mock.Mock
}

func (m *Broadcaster) Broadcast(ctx context.Context, destination string, payload interface{}) error {
	args := m.Called(ctx, destination, payload)
	return args.Error(0)
}

// ReportScheduler 是 service.ReportScheduler 的 Mock
type ReportScheduler struct {
	mock.Mock
}

func (m *ReportScheduler) ScheduleSnapshot(ctx context.Context, report *domain.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}
