package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// GormReportRepository 是 ReportRepository 接口的 GORM 实现
type GormReportRepository struct {
	db *gorm.DB
}

var _ repository.ReportRepository = (*GormReportRepository)(nil)

// NewGormReportRepository 创建 GormReportRepository 实例
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	if db == nil {
		panic("database connection cannot be nil for GormReportRepository")
	}
	return &GormReportRepository{db: db}
}

// Upsert 按 room_id 查找或创建，然后覆盖聚合字段。
// 使用 map 赋值，零值也会被写入。
func (r *GormReportRepository) Upsert(ctx context.Context, report *domain.Report) error {
	if report == nil || report.RoomID == "" {
		return fmt.Errorf("gorm: report with room id is required")
	}
	upsert := func() error {
		return r.db.WithContext(ctx).
			Where(domain.Report{RoomID: report.RoomID}).
			Assign(map[string]interface{}{
				"emoji_count":     report.EmojiCount,
				"question_count":  report.QuestionCount,
				"attention_slide": report.AttentionSlide,
				"popular_emoji":   report.PopularEmoji,
				"revisit":         report.Revisit,
			}).
			FirstOrCreate(report).Error
	}

	err := upsert()
	if err != nil {
		// 并发创建同一房间时唯一索引冲突，第二次会走更新分支
		logrus.WithError(err).WithField("room_id", report.RoomID).Warn("Report upsert failed, retrying once")
		err = upsert()
	}
	if err != nil {
		return fmt.Errorf("gorm: failed to upsert report for room %s: %w", report.RoomID, err)
	}
	return nil
}

// FindByRoomID 未找到时返回 repository.ErrReportNotFound
func (r *GormReportRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.Report, error) {
	var report domain.Report
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrReportNotFound
		}
		return nil, fmt.Errorf("gorm: failed to find report for room %s: %w", roomID, err)
	}
	return &report, nil
}

// DeleteByRoomID 删除房间的报告，不存在时不报错
func (r *GormReportRepository) DeleteByRoomID(ctx context.Context, roomID string) error {
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&domain.Report{}).Error; err != nil {
		return fmt.Errorf("gorm: failed to delete report for room %s: %w", roomID, err)
	}
	return nil
}
