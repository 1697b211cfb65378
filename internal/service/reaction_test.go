package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/service"
	"live-session/internal/service/mocks"
)

func TestReactionService_SubmitHidesAudience(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	ctx := context.Background()
	env.initRoom(t, "r1", 3)

	broadcaster := new(mocks.Broadcaster)
	broadcaster.On("Broadcast", mock.Anything, "/topic/presentation/r1/reactions",
		mock.MatchedBy(func(r domain.Reaction) bool { return r.AudienceID == "" && r.Emoji == 5 && r.X == 0.25 })).
		Return(nil).Once()
	// 唯一的反应者满足多数条件
	broadcaster.On("Broadcast", mock.Anything, "/topic/presentation/r1/liveFeedback", mock.Anything).Return(nil).Maybe()
	aggregator := service.NewLiveAggregator(service.AggregatorStores{
		Rooms: env.repo, Questions: env.repo, Events: env.repo,
		Feedback: env.repo, Revisits: env.repo, Presence: env.repo,
	}, broadcaster)
	reactions := service.NewReactionService(env.repo, env.repo, env.limiter, aggregator, broadcaster)

	// Act
	r, err := reactions.Submit(ctx, service.SubmitReactionInput{RoomID: "r1", Slide: 1, AudienceID: "a1", Emoji: 5, X: 0.25, Y: 0.75})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "a1", r.AudienceID)
	assert.Positive(t, r.CreatedAt)
	broadcaster.AssertExpectations(t)

	logged, err := env.repo.ListReactions(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "a1", logged[0].AudienceID)
	assert.Equal(t, 0.75, logged[0].Y)
}

func TestReactionService_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.initRoom(t, "r1", 3)
	in := service.SubmitReactionInput{RoomID: "r1", Slide: 1, AudienceID: "a1", Emoji: 1}

	for i := 0; i < service.DefaultActionLimit; i++ {
		_, err := env.reactions.Submit(ctx, in)
		require.NoError(t, err)
	}
	_, err := env.reactions.Submit(ctx, in)
	assert.ErrorIs(t, err, service.ErrRateLimited)

	count, err := env.repo.ReactionCount(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(service.DefaultActionLimit), count)
}

func TestReactionService_InvalidInput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reactions.Submit(context.Background(), service.SubmitReactionInput{RoomID: "r1", Slide: 1, AudienceID: "a1"})

	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestReactionService_RejectsClosedRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := service.SubmitReactionInput{RoomID: "r1", Slide: 1, AudienceID: "a1", Emoji: 2}

	_, err := env.reactions.Submit(ctx, in)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	assert.Empty(t, env.mr.Keys())

	env.initRoom(t, "r1", 3)
	require.NoError(t, env.repo.SetSessionStatus(ctx, "r1", domain.StatusEnded))
	_, err = env.reactions.Submit(ctx, in)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.False(t, env.mr.Exists("room:r1:stickers"))
	assert.False(t, env.mr.Exists("room:r1:liveFeedback:slide:1:emoji:counts"))
}
