package domain

// Question 是观众提交的问题。ID 可按字典序排序（时间 + 随机后缀）。
type Question struct {
	ID         string `json:"id"`
	RoomID     string `json:"roomId"`
	Slide      int    `json:"slide"`
	AudienceID string `json:"audienceId"`
	Content    string `json:"content"`
	Ts         int64  `json:"ts"` // 毫秒时间戳，客户端提供或服务端分配
}

// QuestionEvent 是广播到 public/presenter 频道的消息封装。
type QuestionEvent struct {
	Type     string   `json:"type"`
	Question Question `json:"question"`
}

// QuestionCreated 将 q 包装为 question-created 事件。
func QuestionCreated(q Question) QuestionEvent {
	return QuestionEvent{Type: "question-created", Question: q}
}
