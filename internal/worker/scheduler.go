package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"live-session/internal/domain"
	"live-session/internal/service"
	"live-session/internal/tasks"
)

// Enqueuer 是 asynq.Client 中用到的部分
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqReportScheduler 把报告快照作为 asynq 任务入队，实现 service.ReportScheduler。
type AsynqReportScheduler struct {
	client Enqueuer
	queue  string
}

var _ service.ReportScheduler = (*AsynqReportScheduler)(nil)

// NewAsynqReportScheduler 创建调度器；queue 为空时使用 "default"。
func NewAsynqReportScheduler(client Enqueuer, queue string) *AsynqReportScheduler {
	if client == nil {
		panic("asynq client cannot be nil for AsynqReportScheduler")
	}
	if queue == "" {
		queue = "default"
	}
	return &AsynqReportScheduler{client: client, queue: queue}
}

func (s *AsynqReportScheduler) ScheduleSnapshot(ctx context.Context, report *domain.Report) error {
	if report == nil {
		return fmt.Errorf("worker: nil report")
	}
	payload, err := tasks.NewReportSnapshotTask(*report)
	if err != nil {
		return fmt.Errorf("worker: failed to marshal report snapshot payload: %w", err)
	}
	task := asynq.NewTask(tasks.TypeReportSnapshot, payload)
	if _, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	); err != nil {
		return fmt.Errorf("worker: failed to enqueue report snapshot for room %s: %w", report.RoomID, err)
	}
	return nil
}
