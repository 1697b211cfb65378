package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"live-session/internal/domain"
)

// MigrateDB 迁移持久化模型。房间的实时状态只在 Redis 中，数据库只保存报告快照。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := db.AutoMigrate(&domain.Report{}); err != nil {
		logrus.Errorf("Failed to auto-migrate reports table: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
