package domain

// Reaction 是观众贴在某一页上的表情贴纸。只追加到房间日志，不单独更新或删除。
type Reaction struct {
	Emoji      int     `json:"emoji"`
	AudienceID string  `json:"audienceId,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Slide      int     `json:"slide"`
	CreatedAt  int64   `json:"createdAt"`
}

var emojiLabels = map[int]string{
	1: "funny",
	2: "surprising",
	3: "curious",
	4: "exciting",
	5: "annoying",
	6: "sad",
	7: "O",
	8: "X",
}

// EmojiLabel 返回表情编号对应的可读名称。
func EmojiLabel(emoji int) string {
	if label, ok := emojiLabels[emoji]; ok {
		return label
	}
	return "other"
}
