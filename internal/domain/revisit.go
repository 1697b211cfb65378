package domain

// SlideRevisit 是某一页的总回访次数。
type SlideRevisit struct {
	Slide    int   `json:"slide"`
	Revisits int64 `json:"revisits"`
}

// MostRevisit 汇总回访最多的一页。
type MostRevisit struct {
	Slide              int   `json:"slide"`
	TotalRevisits      int64 `json:"totalRevisits"`
	TotalAudienceCount int64 `json:"totalAudienceCount"`
	UniqueUsers        int64 `json:"uniqueUsers"`
	MultiRevisitUsers  int64 `json:"multiRevisitUsers"`
}

// ReactionHotspot 某个表情收到最多的前两页。
type ReactionHotspot struct {
	Emoji       int   `json:"emoji"`
	TopSlide    int   `json:"topSlide"`
	TopCount    int64 `json:"topCount"`
	SecondSlide int   `json:"secondSlide"` // 不存在时为 -1
	SecondCount int64 `json:"secondCount"`
}

// AudienceDistribution 观众相对讲者当前页的分布（百分比）。
type AudienceDistribution struct {
	Front   int64 `json:"front"`
	Current int64 `json:"current"`
	Back    int64 `json:"back"`
}

// ReportTop 实时报告的概要。
type ReportTop struct {
	TotalEmoji    int64 `json:"totalEmoji"`
	TotalQuestion int64 `json:"totalQuestion"`
	FocusSlide    int   `json:"focusSlide"`
}
