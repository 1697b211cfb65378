package repository

import (
	"context"

	"live-session/internal/domain"
)

// ReportRepository 是报告快照的持久化存储，按 roomId 一行。
type ReportRepository interface {
	// Upsert 按 RoomID 查找或创建，然后覆盖聚合字段。
	Upsert(ctx context.Context, report *domain.Report) error

	// FindByRoomID 未找到时返回 ErrReportNotFound。
	FindByRoomID(ctx context.Context, roomID string) (*domain.Report, error)

	DeleteByRoomID(ctx context.Context, roomID string) error
}
