package gormpersistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"live-session/internal/domain"
	gormpersistence "live-session/internal/infra/persistence/gorm"
	"live-session/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每条连接各自独立，固定为一条连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.Report{}))
	return db
}

func strPtr(s string) *string { return &s }

func TestGormReportRepository_Upsert(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	repo := gormpersistence.NewGormReportRepository(db)
	ctx := context.Background()

	// Act: 第一次创建
	first := &domain.Report{RoomID: "r1", EmojiCount: 5, QuestionCount: 2, AttentionSlide: 3, PopularEmoji: strPtr(`[]`)}
	require.NoError(t, repo.Upsert(ctx, first))

	// Act: 第二次覆盖，包括零值
	second := &domain.Report{RoomID: "r1", EmojiCount: 0, QuestionCount: 7, AttentionSlide: 1, Revisit: strPtr(`{"slide":1}`)}
	require.NoError(t, repo.Upsert(ctx, second))

	// Assert
	var count int64
	require.NoError(t, db.Model(&domain.Report{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "同一房间只有一行")

	got, err := repo.FindByRoomID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, int64(0), got.EmojiCount)
	assert.Equal(t, int64(7), got.QuestionCount)
	assert.Equal(t, 1, got.AttentionSlide)
	assert.Nil(t, got.PopularEmoji)
	require.NotNil(t, got.Revisit)
	assert.Equal(t, `{"slide":1}`, *got.Revisit)
}

func TestGormReportRepository_FindAndDelete(t *testing.T) {
	repo := gormpersistence.NewGormReportRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.FindByRoomID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrReportNotFound)

	require.NoError(t, repo.Upsert(ctx, &domain.Report{RoomID: "r1", EmojiCount: 1}))
	require.NoError(t, repo.Upsert(ctx, &domain.Report{RoomID: "r2", EmojiCount: 2}))

	require.NoError(t, repo.DeleteByRoomID(ctx, "r1"))
	require.NoError(t, repo.DeleteByRoomID(ctx, "r1"), "重复删除不报错")

	_, err = repo.FindByRoomID(ctx, "r1")
	assert.ErrorIs(t, err, repository.ErrReportNotFound)
	other, err := repo.FindByRoomID(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), other.EmojiCount)
}

func TestGormReportRepository_RequiresRoomID(t *testing.T) {
	repo := gormpersistence.NewGormReportRepository(newTestDB(t))
	assert.Error(t, repo.Upsert(context.Background(), &domain.Report{}))
	assert.Panics(t, func() { gormpersistence.NewGormReportRepository(nil) })
}
