package domain

import "time"

// Report 是每个房间一行的持久化报告快照，按 RoomID upsert。
type Report struct {
	ID             uint      `gorm:"primaryKey"`
	RoomID         string    `gorm:"uniqueIndex;size:64;not null"`
	EmojiCount     int64     `gorm:"not null;default:0"`
	QuestionCount  int64     `gorm:"not null;default:0"`
	AttentionSlide int       `gorm:"not null;default:0"`
	PopularEmoji   *string   `gorm:"type:text"` // JSON
	Revisit        *string   `gorm:"type:text"` // JSON
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}
