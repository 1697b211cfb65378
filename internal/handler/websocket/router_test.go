package websocket_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/gateway"
	ws "live-session/internal/handler/websocket"
	redisstate "live-session/internal/infra/state/redis"
	"live-session/internal/repository"
	"live-session/internal/service"
	"live-session/internal/service/mocks"
)

func newRouter(t *testing.T) (*ws.Router, *miniredis.Miniredis, *mocks.Broadcaster) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := redisstate.NewRedisStateRepository(client, time.Hour)

	ctx := context.Background()
	require.NoError(t, repo.InitRoomState(ctx, "r1", repository.RoomState{Status: domain.StatusLive, TotalPages: 5}, time.Hour))
	require.NoError(t, repo.InitFeedback(ctx, "r1", 5, time.Hour))

	broadcaster := new(mocks.Broadcaster)
	broadcaster.On("Broadcast", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	limiter := service.NewRateLimiter(repo, service.DefaultActionLimit, service.DefaultActionWindow)
	aggregator := service.NewLiveAggregator(service.AggregatorStores{
		Rooms:     repo,
		Questions: repo,
		Events:    repo,
		Feedback:  repo,
		Revisits:  repo,
		Presence:  repo,
	}, broadcaster)
	router := ws.NewRouter(
		service.NewPageService(repo, aggregator, broadcaster),
		service.NewQuestionService(repo, repo, repo, limiter, broadcaster),
		service.NewReactionService(repo, repo, limiter, aggregator, broadcaster),
	)
	return router, mr, broadcaster
}

var (
	presenter = domain.Principal{Role: domain.RolePresenter, RoomID: "r1", SubjectID: service.PresenterSubject}
	audience  = domain.Principal{Role: domain.RoleAudience, RoomID: "r1", SubjectID: "a1"}
)

func send(destination, body string) gateway.Frame {
	f := gateway.Frame{Command: gateway.CommandSend, Destination: destination}
	if body != "" {
		f.Body = json.RawMessage(body)
	}
	return f
}

func TestRouter_PresenterPageChange(t *testing.T) {
	router, mr, _ := newRouter(t)

	err := router.Dispatch(context.Background(), presenter, send("/app/presentation/r1/pageChange/presenter", `{"page":3}`))

	require.NoError(t, err)
	page, err := mr.Get("room:r1:presenterPage")
	require.NoError(t, err)
	assert.Equal(t, "3", page)
}

func TestRouter_AudiencePageUsesCredentialSubject(t *testing.T) {
	router, mr, _ := newRouter(t)

	// 消息体里的 audienceId 不能冒充他人
	err := router.Dispatch(context.Background(), audience,
		send("/app/presentation/r1/pageChange/audience", `{"audienceId":"someone-else","beforePage":0,"afterPage":2}`))

	require.NoError(t, err)
	members, err := mr.Members("room:r1:slide:2")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, members)
}

func TestRouter_QuestionAndReaction(t *testing.T) {
	router, mr, broadcaster := newRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Dispatch(ctx, audience, send("/app/presentation/r1/question", `{"slide":1,"content":"why?"}`)))
	ids, err := mr.ZMembers("room:r1:questions")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	require.NoError(t, router.Dispatch(ctx, audience, send("/app/presentation/r1/reaction", `{"slide":1,"emoji":2,"x":0.5,"y":0.5}`)))
	assert.True(t, mr.Exists("room:r1:stickers"))
	broadcaster.AssertCalled(t, "Broadcast", mock.Anything, service.ReactionsTopic("r1"), mock.Anything)
}

func TestRouter_UnlockAndFocus(t *testing.T) {
	router, mr, broadcaster := newRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Dispatch(ctx, presenter, send("/app/presentation/r1/option/unlock", `{"revealAllSlides":true}`)))
	assert.True(t, mr.Exists("room:r1:option:slideUnlock"))

	// 讲者还没有翻页时不能聚焦
	err := router.Dispatch(ctx, presenter, send("/app/presentation/r1/focusOn", ""))
	assert.ErrorIs(t, err, service.ErrPresenterPageMissing)

	require.NoError(t, router.Dispatch(ctx, presenter, send("/app/presentation/r1/pageChange/presenter", `{"page":2}`)))
	require.NoError(t, router.Dispatch(ctx, presenter, send("/app/presentation/r1/focusOn", "")))
	broadcaster.AssertCalled(t, "Broadcast", mock.Anything, service.FocusOnTopic("r1"), service.FocusRequest{Page: 2})
}

func TestRouter_RejectsInvalidMessages(t *testing.T) {
	router, _, _ := newRouter(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		frame gateway.Frame
	}{
		{"未知目的地", send("/app/presentation/r1/unknown", `{}`)},
		{"非 presentation 前缀", send("/app/presenter/r1/anything", `{}`)},
		{"缺少动作", send("/app/presentation/r1", `{}`)},
		{"缺少消息体", send("/app/presentation/r1/pageChange/presenter", "")},
		{"消息体格式错误", send("/app/presentation/r1/question", `{"slide":`)},
		{"页码非法", send("/app/presentation/r1/pageChange/presenter", `{"page":0}`)},
		{"问题为空", send("/app/presentation/r1/question", `{"slide":1,"content":""}`)},
		{"表情缺失", send("/app/presentation/r1/reaction", `{"slide":1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := router.Dispatch(ctx, audience, tt.frame)
			assert.ErrorIs(t, err, service.ErrInvalidInput)
			assert.Equal(t, service.KindInvalid, service.KindOf(err))
		})
	}
}

func TestRouter_RateLimitsQuestions(t *testing.T) {
	router, _, _ := newRouter(t)
	ctx := context.Background()

	for i := 0; i < service.DefaultActionLimit; i++ {
		require.NoError(t, router.Dispatch(ctx, audience, send("/app/presentation/r1/question", `{"slide":1,"content":"q"}`)))
	}
	err := router.Dispatch(ctx, audience, send("/app/presentation/r1/question", `{"slide":1,"content":"q"}`))
	assert.ErrorIs(t, err, service.ErrRateLimited)
}
