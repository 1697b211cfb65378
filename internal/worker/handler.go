package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
	"live-session/internal/tasks"
)

// RoomStatusReader 读取房间的会话状态，房间被清理后返回 repository.ErrNotFound。
type RoomStatusReader interface {
	GetSessionStatus(ctx context.Context, roomID string) (domain.SessionStatus, error)
}

// ReportSnapshotHandler 处理报告快照 upsert 任务
type ReportSnapshotHandler struct {
	reports repository.ReportRepository
	rooms   RoomStatusReader
}

// NewReportSnapshotHandler 创建 Handler 实例
func NewReportSnapshotHandler(reports repository.ReportRepository, rooms RoomStatusReader) *ReportSnapshotHandler {
	if reports == nil {
		panic("ReportRepository cannot be nil for ReportSnapshotHandler")
	}
	if rooms == nil {
		panic("RoomStatusReader cannot be nil for ReportSnapshotHandler")
	}
	return &ReportSnapshotHandler{reports: reports, rooms: rooms}
}

// roomExists 房间状态 key 不存在即视为已清理
func (h *ReportSnapshotHandler) roomExists(ctx context.Context, roomID string) (bool, error) {
	if _, err := h.rooms.GetSessionStatus(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ReportSnapshotHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	var payload tasks.ReportSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Report.RoomID == "" {
		logCtx.Error("Report snapshot task without room id")
		return fmt.Errorf("report snapshot without room id: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.Report.RoomID)

	roomID := payload.Report.RoomID
	exists, err := h.roomExists(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to check room before snapshot")
		return fmt.Errorf("failed to check room %s: %w", roomID, err)
	}
	if !exists {
		logCtx.Warn("Room already torn down, dropping report snapshot")
		return fmt.Errorf("room %s no longer exists: %w", roomID, asynq.SkipRetry)
	}

	report := payload.Report
	report.ID = 0 // 行 id 由 upsert 决定
	if err := h.reports.Upsert(ctx, &report); err != nil {
		logCtx.WithError(err).Error("Failed to upsert report snapshot")
		return fmt.Errorf("failed to upsert report for room %s: %w", roomID, err)
	}

	// 清理先删 Redis 再删报告行；upsert 期间房间被清理时由这里补删
	exists, err = h.roomExists(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to recheck room after snapshot")
		return nil
	}
	if !exists {
		logCtx.Warn("Room torn down during snapshot, removing report row")
		if err := h.reports.DeleteByRoomID(ctx, roomID); err != nil {
			return fmt.Errorf("failed to remove report for torn down room %s: %w", roomID, err)
		}
	}

	logCtx.Info("Report snapshot persisted")
	return nil
}
