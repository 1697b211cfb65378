package tasks

import (
	"encoding/json"

	"live-session/internal/domain"
)

// 定义任务类型常量
const (
	TypeReportSnapshot      = "report:snapshot"       // 报告快照 upsert 任务类型
	TypeReportPeriodicCheck = "report:periodic_check" // 周期性为活跃房间生成快照
)

// ReportSnapshotPayload 定义了报告快照任务的数据结构
type ReportSnapshotPayload struct {
	Report domain.Report
}

// NewReportSnapshotTask 序列化报告快照任务的 payload
func NewReportSnapshotTask(report domain.Report) ([]byte, error) {
	payload := ReportSnapshotPayload{
		Report: report,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}

// NewReportPeriodicCheckTask 周期任务不需要参数，返回空 JSON 对象
func NewReportPeriodicCheckTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
