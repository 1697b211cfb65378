package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/service"
)

func createRoom(t *testing.T, env *testEnv) *service.CreatedRoom {
	t.Helper()
	created, err := env.rooms.CreateRoom(context.Background(), service.CreateRoomInput{DeckID: "deck-1", TotalPages: 5})
	require.NoError(t, err)
	return created
}

func TestRoomService_CreateAndJoin(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	ctx := context.Background()

	// Act
	created := createRoom(t, env)
	joined, err := env.rooms.JoinRoom(ctx, created.Room.Code)

	// Assert: 房间初始状态
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, created.Room.Status)
	assert.NotEmpty(t, created.Presenter.Token)
	assert.NotEmpty(t, created.Presenter.PresenterKey)

	presenter, err := env.tokens.Parse(created.Presenter.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePresenter, presenter.Role)
	assert.Equal(t, created.Room.ID, presenter.RoomID)

	// 观众凭证
	assert.Equal(t, created.Room.ID, joined.RoomID)
	assert.Equal(t, 5, joined.TotalPages)
	audience, err := env.tokens.Parse(joined.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAudience, audience.Role)
	assert.Equal(t, joined.AudienceID, audience.SubjectID)

	entered, err := env.repo.GetAudienceEntered(ctx, created.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), entered)

	// 每页的实时反馈初始化为 NONE
	state, err := env.aggregator.FeedbackState(ctx, created.Room.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.ThresholdNone, state.Status)
	assert.Equal(t, domain.DefaultFeedbackMessage, state.Message)

	room, err := env.rooms.GetRoom(ctx, created.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Room.Code, room.Code)
	assert.Equal(t, "deck-1", room.DeckID)
}

func TestRoomService_CreateRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.rooms.CreateRoom(context.Background(), service.CreateRoomInput{TotalPages: 0})

	assert.ErrorIs(t, err, service.ErrInvalidInput)
	assert.Empty(t, env.mr.Keys(), "失败时不应留下任何 key")
}

func TestRoomService_JoinUnknownCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.rooms.JoinRoom(context.Background(), "000000")

	assert.ErrorIs(t, err, service.ErrCodeNotFound)
	assert.Equal(t, service.KindNotFound, service.KindOf(err))
}

func TestRoomService_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := createRoom(t, env)
	roomID := created.Room.ID

	require.NoError(t, env.rooms.StartSession(ctx, roomID))
	require.NoError(t, env.rooms.StartSession(ctx, roomID), "重复开始是无操作")
	room, err := env.rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, room.Status)

	require.NoError(t, env.rooms.EndSession(ctx, roomID))
	room, err = env.rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, room.Status)

	// 结束后邀请码只保留宽限期，并调度了一次快照
	assert.Equal(t, time.Hour, env.mr.TTL("code:"+created.Room.Code))
	env.scheduler.AssertCalled(t, "ScheduleSnapshot", mock.Anything,
		mock.MatchedBy(func(r *domain.Report) bool { return r.RoomID == roomID }))

	// 结束的房间不能再开始，也不能再加入
	assert.ErrorIs(t, env.rooms.StartSession(ctx, roomID), service.ErrInvalidTransition)
	_, err = env.rooms.JoinRoom(ctx, created.Room.Code)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestRoomService_TeardownRemovesEverything(t *testing.T) {
	// Arrange: 一个有观众、问题与表情的房间
	env := newTestEnv(t)
	ctx := context.Background()
	created := createRoom(t, env)
	roomID := created.Room.ID

	joined, err := env.rooms.JoinRoom(ctx, created.Room.Code)
	require.NoError(t, err)
	_, err = env.questions.Submit(ctx, service.SubmitQuestionInput{RoomID: roomID, Slide: 1, AudienceID: joined.AudienceID, Content: "why?"})
	require.NoError(t, err)
	_, err = env.reactions.Submit(ctx, service.SubmitReactionInput{RoomID: roomID, Slide: 1, AudienceID: joined.AudienceID, Emoji: 2})
	require.NoError(t, err)
	require.NoError(t, env.pages.ChangeAudiencePage(ctx, roomID, joined.AudienceID, 0, 1))
	require.NotEmpty(t, env.mr.Keys())

	env.reportsDB.On("DeleteByRoomID", mock.Anything, roomID).Return(nil).Once()

	// Act
	require.NoError(t, env.rooms.Teardown(ctx, roomID))

	// Assert
	assert.Empty(t, env.mr.Keys())
	_, err = env.registry.ResolveRoomID(ctx, created.Room.Code)
	assert.ErrorIs(t, err, service.ErrCodeNotFound)
	_, err = env.rooms.GetRoom(ctx, roomID)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	env.reportsDB.AssertExpectations(t)
}

func TestRoomService_TeardownLeavesOtherRooms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := createRoom(t, env)
	second := createRoom(t, env)
	env.reportsDB.On("DeleteByRoomID", mock.Anything, first.Room.ID).Return(nil).Once()

	require.NoError(t, env.rooms.Teardown(ctx, first.Room.ID))

	roomID, err := env.registry.ResolveRoomID(ctx, second.Room.Code)
	require.NoError(t, err)
	assert.Equal(t, second.Room.ID, roomID)
}

func TestRoomService_RefreshPresenterToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := createRoom(t, env)
	roomID := created.Room.ID
	key := created.Presenter.PresenterKey

	_, err := env.rooms.RefreshPresenterToken(ctx, roomID, "wrong-key", false)
	assert.ErrorIs(t, err, service.ErrPresenterKeyWrong)

	creds, err := env.rooms.RefreshPresenterToken(ctx, roomID, key, false)
	require.NoError(t, err)
	assert.NotEmpty(t, creds.Token)
	assert.Empty(t, creds.PresenterKey, "不轮换时不返回密钥")

	// 轮换后旧密钥失效
	rotated, err := env.rooms.RefreshPresenterToken(ctx, roomID, key, true)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.PresenterKey)
	assert.NotEqual(t, key, rotated.PresenterKey)

	_, err = env.rooms.RefreshPresenterToken(ctx, roomID, key, false)
	assert.ErrorIs(t, err, service.ErrPresenterKeyWrong)
	_, err = env.rooms.RefreshPresenterToken(ctx, roomID, rotated.PresenterKey, false)
	assert.NoError(t, err)
}
