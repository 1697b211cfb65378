package domain

// ThresholdStatus 是每页多数反应检测的状态。只能 NONE → FIRST → SECOND 前进。
type ThresholdStatus string

const (
	ThresholdNone   ThresholdStatus = "NONE"
	ThresholdFirst  ThresholdStatus = "FIRST"
	ThresholdSecond ThresholdStatus = "SECOND"
)

func (s ThresholdStatus) rank() int {
	switch s {
	case ThresholdFirst:
		return 1
	case ThresholdSecond:
		return 2
	default:
		return 0
	}
}

// CanAdvanceTo 判断 s → next 是否严格前进。
func (s ThresholdStatus) CanAdvanceTo(next ThresholdStatus) bool {
	return next.rank() > s.rank()
}

// DefaultFeedbackMessage 阈值触发前显示的默认消息
const DefaultFeedbackMessage = "Analysing reactions..."

// ThresholdState 是 (room, slide) 的可变检测记录。
type ThresholdState struct {
	Slide           int             `json:"slide"`
	Status          ThresholdStatus `json:"status"`
	Message         string          `json:"message"`
	MostPeopleCount int64           `json:"mostPeopleCounts"`
	Emoji           int             `json:"emoji,omitempty"` // 触发 FIRST 的表情
}

// EmojiCount 是某页上某个表情的累计次数，按首次出现顺序排列。
type EmojiCount struct {
	Emoji int   `json:"emoji"`
	Count int64 `json:"count"`
}

// LiveFeedback 在阈值状态迁移时广播。
type LiveFeedback struct {
	Slide   int             `json:"slide"`
	Status  ThresholdStatus `json:"status"`
	Emoji   int             `json:"emoji"`
	Message string          `json:"message"`
}
