package domain

import "time"

// SessionStatus 是房间的粗粒度生命周期状态。
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusLive    SessionStatus = "live"
	StatusEnded   SessionStatus = "ended"
)

// Valid 判断 s 是否为已知的生命周期状态。
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusLive, StatusEnded:
		return true
	}
	return false
}

// Room 表示一次直播演示会话。Room 是 store 中所有 key 的根。
type Room struct {
	ID         string        `json:"roomId"`     // 全局唯一，不透明
	Code       string        `json:"code"`       // 6 位邀请码
	Status     SessionStatus `json:"status"`     // waiting | live | ended
	DeckID     string        `json:"deckId"`     // 幻灯片包引用
	TotalPages int           `json:"totalPages"` // 幻灯片数量
	ExpiresAt  time.Time     `json:"expiresAt"`  // 由 TTL 推导
}

// CodeState 是邀请码预留的状态。
type CodeState string

const (
	CodeReserved  CodeState = "RESERVED"
	CodeConfirmed CodeState = "CONFIRMED"
)

// CodeReservation 是 code → (roomId, token, state) 的临时映射。
// 确认后 Token 为空。
type CodeReservation struct {
	Code   string
	RoomID string
	Token  string
	State  CodeState
}
