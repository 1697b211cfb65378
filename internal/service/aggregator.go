package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
	"live-session/internal/repository"
)

// 焦点页评分的权重
const (
	questionWeight = 5
	revisitWeight  = 4
	reactionWeight = 3
)

// multiRevisitThreshold 个人回访次数达到该值即计为多次回访用户
const multiRevisitThreshold = 2

// LiveAggregator 从已写入的状态中派生实时信号：回访、多数反应检测与焦点页。
type LiveAggregator struct {
	rooms       repository.RoomStateStore
	questions   repository.QuestionStore
	events      repository.EventLog
	feedback    repository.FeedbackStore
	revisits    repository.RevisitStore
	presence    repository.PresenceStore
	broadcaster Broadcaster
}

// AggregatorStores 汇总 LiveAggregator 依赖的存储接口。
type AggregatorStores struct {
	Rooms     repository.RoomStateStore
	Questions repository.QuestionStore
	Events    repository.EventLog
	Feedback  repository.FeedbackStore
	Revisits  repository.RevisitStore
	Presence  repository.PresenceStore
}

func NewLiveAggregator(stores AggregatorStores, broadcaster Broadcaster) *LiveAggregator {
	if stores.Rooms == nil || stores.Questions == nil || stores.Events == nil ||
		stores.Feedback == nil || stores.Revisits == nil || stores.Presence == nil {
		panic("all stores are required for LiveAggregator")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for LiveAggregator")
	}
	return &LiveAggregator{
		rooms:       stores.Rooms,
		questions:   stores.Questions,
		events:      stores.Events,
		feedback:    stores.Feedback,
		revisits:    stores.Revisits,
		presence:    stores.Presence,
		broadcaster: broadcaster,
	}
}

// TrackAudiencePage 在观众翻页时移动页集合；目标页不是讲者当前页时记一次回访。
func (a *LiveAggregator) TrackAudiencePage(ctx context.Context, roomID, audienceID string, before, after int) error {
	if after <= 0 {
		return ErrInvalidInput.WithMessage("page must be positive")
	}
	if err := a.revisits.MoveAudience(ctx, roomID, audienceID, before, after); err != nil {
		return ErrStore.Wrap(err)
	}

	presenterPage, err := a.rooms.GetPresenterPage(ctx, roomID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return ErrStore.Wrap(err)
	}
	if after == presenterPage {
		return nil
	}
	if err := a.revisits.RecordRevisit(ctx, roomID, audienceID, after); err != nil {
		return ErrStore.Wrap(err)
	}
	return nil
}

// KnownAudience 返回在线观众数；在线集合为空时使用入场计数。
func (a *LiveAggregator) KnownAudience(ctx context.Context, roomID string) (int64, error) {
	online, err := a.presence.OnlineCount(ctx, roomID)
	if err != nil {
		return 0, ErrStore.Wrap(err)
	}
	if online > 0 {
		return online, nil
	}
	entered, err := a.rooms.GetAudienceEntered(ctx, roomID)
	if err != nil {
		return 0, ErrStore.Wrap(err)
	}
	return entered, nil
}

// OnReaction 更新多数反应检测状态。发生状态迁移时广播并返回该迁移，否则返回 nil。
//
// NONE → FIRST：该表情的去重反应者不少于已知观众的一半，且超过已记录的峰值。
// → SECOND：该页至少出现两种表情后，计数最高的表情（并列取先出现者）。
// 从 FIRST 出发时，领先表情必须不同于触发 FIRST 的表情且计数超过峰值。SECOND 为终态。
func (a *LiveAggregator) OnReaction(ctx context.Context, roomID string, r domain.Reaction) (*domain.LiveFeedback, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "slide": r.Slide, "emoji": r.Emoji})

	tally, err := a.feedback.RecordReaction(ctx, roomID, r.Slide, r.Emoji, r.AudienceID)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	state, err := a.feedback.GetFeedback(ctx, roomID, r.Slide)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}

	var next *domain.ThresholdState
	switch state.Status {
	case domain.ThresholdNone:
		total, err := a.KnownAudience(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if 2*tally.DistinctReactors >= total && tally.DistinctReactors > state.MostPeopleCount {
			next = &domain.ThresholdState{
				Slide:           r.Slide,
				Status:          domain.ThresholdFirst,
				Message:         firstThresholdMessage(r.Emoji),
				MostPeopleCount: tally.DistinctReactors,
				Emoji:           r.Emoji,
			}
		} else if len(tally.Counts) >= 2 {
			leader := leadingEmoji(tally.Counts)
			next = secondThreshold(r.Slide, state, leader)
		}
	case domain.ThresholdFirst:
		if len(tally.Counts) >= 2 {
			leader := leadingEmoji(tally.Counts)
			if leader.Emoji != state.Emoji && leader.Count > state.MostPeopleCount {
				next = secondThreshold(r.Slide, state, leader)
			}
		}
	}
	if next == nil {
		return nil, nil
	}

	advanced, err := a.feedback.AdvanceFeedback(ctx, roomID, state.Status, *next)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	if !advanced {
		// 另一个并发反应已经推进了状态
		logCtx.Debug("Threshold transition lost the race, skipping")
		return nil, nil
	}

	feedback := &domain.LiveFeedback{Slide: next.Slide, Status: next.Status, Emoji: next.Emoji, Message: next.Message}
	if err := a.broadcaster.Broadcast(ctx, LiveFeedbackTopic(roomID), feedback); err != nil {
		logCtx.WithError(err).Warn("Failed to broadcast live feedback")
	}
	logCtx.WithField("status", next.Status).Info("Live feedback threshold reached")
	return feedback, nil
}

func secondThreshold(slide int, prev *domain.ThresholdState, leader domain.EmojiCount) *domain.ThresholdState {
	return &domain.ThresholdState{
		Slide:           slide,
		Status:          domain.ThresholdSecond,
		Message:         secondThresholdMessage(leader.Emoji),
		MostPeopleCount: prev.MostPeopleCount,
		Emoji:           leader.Emoji,
	}
}

// leadingEmoji 返回计数最高的表情，并列时取先出现的。
func leadingEmoji(counts []domain.EmojiCount) domain.EmojiCount {
	return lo.MaxBy(counts, func(a, b domain.EmojiCount) bool { return a.Count > b.Count })
}

func firstThresholdMessage(emoji int) string {
	return fmt.Sprintf("More than half of the audience reacted with '%s'!", domain.EmojiLabel(emoji))
}

func secondThresholdMessage(emoji int) string {
	return fmt.Sprintf("'%s' reactions are standing out!", domain.EmojiLabel(emoji))
}

// FeedbackState 返回某页当前的检测状态。
func (a *LiveAggregator) FeedbackState(ctx context.Context, roomID string, slide int) (*domain.ThresholdState, error) {
	state, err := a.feedback.GetFeedback(ctx, roomID, slide)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	return state, nil
}

func (a *LiveAggregator) totalPages(ctx context.Context, roomID string) (int, error) {
	total, err := a.rooms.GetTotalPages(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logrus.WithField("room_id", roomID).Error("Total page count is not set")
		}
		return 0, mapRepoError(err, ErrTotalPageMissing)
	}
	return total, nil
}

// Revisits 返回 1..totalPages 每页的回访数。
func (a *LiveAggregator) Revisits(ctx context.Context, roomID string) ([]domain.SlideRevisit, error) {
	total, err := a.totalPages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	counts, err := a.revisits.GetRevisits(ctx, roomID, total)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	return lo.Map(counts, func(n int64, i int) domain.SlideRevisit {
		return domain.SlideRevisit{Slide: i + 1, Revisits: n}
	}), nil
}

// MostRevisit 返回回访最多的页（并列取最小页号）及其回访用户统计。
func (a *LiveAggregator) MostRevisit(ctx context.Context, roomID string) (*domain.MostRevisit, error) {
	revisits, err := a.Revisits(ctx, roomID)
	if err != nil {
		return nil, err
	}
	result := &domain.MostRevisit{}
	if len(revisits) > 0 {
		most := lo.MaxBy(revisits, func(a, b domain.SlideRevisit) bool { return a.Revisits > b.Revisits })
		result.Slide = most.Slide
		result.TotalRevisits = most.Revisits
		result.UniqueUsers, result.MultiRevisitUsers, err = a.revisits.RevisitUsers(ctx, roomID, most.Slide, multiRevisitThreshold)
		if err != nil {
			return nil, ErrStore.Wrap(err)
		}
	}
	result.TotalAudienceCount, err = a.rooms.GetAudienceEntered(ctx, roomID)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}
	return result, nil
}

// ReactionHotspots 对每个表情返回收到最多的前两页，按表情编号排序。
func (a *LiveAggregator) ReactionHotspots(ctx context.Context, roomID string) ([]domain.ReactionHotspot, error) {
	reactions, err := a.events.ListReactions(ctx, roomID)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}

	byEmoji := make(map[int]map[int]int64)
	for _, r := range reactions {
		if byEmoji[r.Emoji] == nil {
			byEmoji[r.Emoji] = make(map[int]int64)
		}
		byEmoji[r.Emoji][r.Slide]++
	}

	emojis := lo.Keys(byEmoji)
	sort.Ints(emojis)
	hotspots := make([]domain.ReactionHotspot, 0, len(emojis))
	for _, emoji := range emojis {
		ranked := rankSlides(byEmoji[emoji])
		h := domain.ReactionHotspot{Emoji: emoji, TopSlide: ranked[0].slide, TopCount: ranked[0].count, SecondSlide: -1}
		if len(ranked) > 1 {
			h.SecondSlide = ranked[1].slide
			h.SecondCount = ranked[1].count
		}
		hotspots = append(hotspots, h)
	}
	return hotspots, nil
}

type slideCount struct {
	slide int
	count int64
}

// rankSlides 按计数降序、页号升序排序。
func rankSlides(counts map[int]int64) []slideCount {
	ranked := lo.MapToSlice(counts, func(slide int, count int64) slideCount {
		return slideCount{slide: slide, count: count}
	})
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].slide < ranked[j].slide
	})
	return ranked
}

// FocusSlide 计算焦点页：问题最多的页 +5，回访最多的页 +4（最大值 > 0 时），
// 表情最多的页 +3。并列的页都获得完整权重；总分并列时取最小页号。
func (a *LiveAggregator) FocusSlide(ctx context.Context, roomID string) (int, error) {
	total, err := a.totalPages(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, ErrTotalPageMissing
	}
	logCtx := logrus.WithField("room_id", roomID)

	questionCounts, err := a.questions.CountQuestionsBySlide(ctx, roomID)
	if err != nil {
		return 0, ErrStore.Wrap(err)
	}
	revisitCounts, err := a.revisits.GetRevisits(ctx, roomID, total)
	if err != nil {
		return 0, ErrStore.Wrap(err)
	}
	reactions, err := a.events.ListReactions(ctx, roomID)
	if err != nil {
		return 0, ErrStore.Wrap(err)
	}
	reactionCounts := make(map[int]int64)
	for _, r := range reactions {
		reactionCounts[r.Slide]++
	}

	scores := make([]int, total)
	addWeight := func(slides []int, weight int) {
		for _, slide := range slides {
			if slide > 0 && slide <= total {
				scores[slide-1] += weight
			}
		}
	}

	mostQuestions := slidesWithMax(questionCounts)
	addWeight(mostQuestions, questionWeight)

	revisitMap := make(map[int]int64, total)
	for i, n := range revisitCounts {
		revisitMap[i+1] = n
	}
	mostRevisits := slidesWithMax(revisitMap)
	addWeight(mostRevisits, revisitWeight)

	mostReactions := slidesWithMax(reactionCounts)
	addWeight(mostReactions, reactionWeight)

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	logCtx.WithFields(logrus.Fields{
		"most_questions": mostQuestions,
		"most_revisits":  mostRevisits,
		"most_reactions": mostReactions,
		"scores":         scores,
	}).Debug("Focus slide computed")
	return best + 1, nil
}

// slidesWithMax 返回计数等于最大值的页，按页号升序。最大值为 0 时返回空。
func slidesWithMax(counts map[int]int64) []int {
	if len(counts) == 0 {
		return nil
	}
	top := lo.Max(lo.Values(counts))
	if top <= 0 {
		return nil
	}
	slides := lo.Keys(lo.PickBy(counts, func(_ int, n int64) bool { return n == top }))
	sort.Ints(slides)
	return slides
}

// AudienceDistribution 返回观众位于讲者当前页之前、当前页、之后的百分比。
func (a *LiveAggregator) AudienceDistribution(ctx context.Context, roomID string) (*domain.AudienceDistribution, error) {
	presenterPage, err := a.rooms.GetPresenterPage(ctx, roomID)
	if err != nil {
		return nil, mapRepoError(err, ErrPresenterPageMissing)
	}
	total, err := a.totalPages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	counts, err := a.revisits.SlideAudienceCounts(ctx, roomID, total)
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}

	var front, current, back int64
	for i, n := range counts {
		switch slide := i + 1; {
		case slide < presenterPage:
			front += n
		case slide == presenterPage:
			current += n
		default:
			back += n
		}
	}
	sum := front + current + back
	if sum == 0 {
		return &domain.AudienceDistribution{}, nil
	}
	percent := func(n int64) int64 { return int64(math.Round(float64(n) * 100 / float64(sum))) }
	return &domain.AudienceDistribution{Front: percent(front), Current: percent(current), Back: percent(back)}, nil
}
