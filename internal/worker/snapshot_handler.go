package worker

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// ActiveRooms 返回本实例上有连接的房间
type ActiveRooms interface {
	ActiveRoomIDs() []string
}

// Snapshotter 为一个房间计算并调度报告快照
type Snapshotter interface {
	Snapshot(ctx context.Context, roomID string) error
}

// SnapshotCheckHandler 处理周期性的快照检查任务
type SnapshotCheckHandler struct {
	rooms   ActiveRooms
	reports Snapshotter
}

// NewSnapshotCheckHandler 创建 Handler 实例
func NewSnapshotCheckHandler(rooms ActiveRooms, reports Snapshotter) *SnapshotCheckHandler {
	if rooms == nil {
		panic("ActiveRooms cannot be nil for SnapshotCheckHandler")
	}
	if reports == nil {
		panic("Snapshotter cannot be nil for SnapshotCheckHandler")
	}
	return &SnapshotCheckHandler{rooms: rooms, reports: reports}
}

// ProcessTask 实现 asynq.Handler 接口。单个房间失败只记录，不让整个周期任务重试。
func (h *SnapshotCheckHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	roomIDs := h.rooms.ActiveRoomIDs()
	if len(roomIDs) == 0 {
		logCtx.Debug("No active rooms found, skipping snapshot check.")
		return nil
	}
	logCtx.Infof("Found %d active rooms to snapshot.", len(roomIDs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, roomID := range roomIDs {
		wg.Add(1)
		go func(rID string) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := h.reports.Snapshot(checkCtx, rID); err != nil {
				logCtx.WithField("room_id", rID).WithError(err).Warn("Snapshot failed for room")
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(roomID)
	}
	wg.Wait()

	if failed > 0 {
		logCtx.Errorf("Snapshot check completed with %d failed rooms.", failed)
	}
	return nil
}
