package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"live-session/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server   *asynq.Server
	log      *logrus.Entry
	snapshot *ReportSnapshotHandler
	check    *SnapshotCheckHandler
}

// NewWorkerServer 创建一个新的 WorkerServer 实例。check 为 nil 时不处理周期检查任务。
func NewWorkerServer(redisOpt asynq.RedisClientOpt, concurrency int, snapshot *ReportSnapshotHandler,
	check *SnapshotCheckHandler, logger *logrus.Logger) *WorkerServer {
	if snapshot == nil {
		panic("ReportSnapshotHandler cannot be nil for WorkerServer")
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:   server,
		log:      logEntry,
		snapshot: snapshot,
		check:    check,
	}
}

// Mux 返回注册了全部任务处理器的 ServeMux
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeReportSnapshot, ws.snapshot.ProcessTask)
	if ws.check != nil {
		mux.HandleFunc(tasks.TypeReportPeriodicCheck, ws.check.ProcessTask)
	}
	return mux
}

// Start 运行 Worker Server，阻塞直到关闭。
// 它应该在一个单独的 goroutine 中调用
func (ws *WorkerServer) Start() error {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.Mux()); err != nil {
		// 检查是否是正常关闭错误
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Info("Worker server stopped.")
			return nil
		}
		return fmt.Errorf("could not run worker server: %w", err)
	}
	return nil
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
