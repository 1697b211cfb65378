package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	redisstate "live-session/internal/infra/state/redis"
	"live-session/internal/repository"
	repomocks "live-session/internal/repository/mocks"
	"live-session/internal/service"
	"live-session/internal/service/mocks"
)

// testEnv 用 miniredis 组装真实的 Redis 存储与全部服务，出站依赖使用 Mock。
type testEnv struct {
	mr          *miniredis.Miniredis
	repo        *redisstate.RedisStateRepository
	broadcaster *mocks.Broadcaster
	scheduler   *mocks.ReportScheduler
	reportsDB   *repomocks.ReportRepository

	tokens     *service.TokenService
	registry   *service.SessionRegistry
	limiter    *service.RateLimiter
	aggregator *service.LiveAggregator
	questions  *service.QuestionService
	reactions  *service.ReactionService
	pages      *service.PageService
	reports    *service.ReportService
	rooms      *service.RoomService
}

// newTestEnv 创建测试环境。广播默认全部放行，需要精确断言的测试自行构造 Mock。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		mr:          mr,
		repo:        redisstate.NewRedisStateRepository(client, 24*time.Hour),
		broadcaster: new(mocks.Broadcaster),
		scheduler:   new(mocks.ReportScheduler),
		reportsDB:   new(repomocks.ReportRepository),
	}
	env.broadcaster.On("Broadcast", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	env.scheduler.On("ScheduleSnapshot", mock.Anything, mock.Anything).Return(nil).Maybe()
	env.wire(t)
	return env
}

func (e *testEnv) wire(t *testing.T) {
	t.Helper()
	var err error
	e.tokens, err = service.NewTokenService("test-secret", time.Hour, time.Hour)
	require.NoError(t, err)

	e.registry = service.NewSessionRegistry(e.repo, 24*time.Hour, time.Hour)
	e.limiter = service.NewRateLimiter(e.repo, service.DefaultActionLimit, service.DefaultActionWindow)
	e.aggregator = service.NewLiveAggregator(service.AggregatorStores{
		Rooms:     e.repo,
		Questions: e.repo,
		Events:    e.repo,
		Feedback:  e.repo,
		Revisits:  e.repo,
		Presence:  e.repo,
	}, e.broadcaster)
	e.questions = service.NewQuestionService(e.repo, e.repo, e.repo, e.limiter, e.broadcaster)
	e.reactions = service.NewReactionService(e.repo, e.repo, e.limiter, e.aggregator, e.broadcaster)
	e.pages = service.NewPageService(e.repo, e.aggregator, e.broadcaster)
	e.reports = service.NewReportService(e.aggregator, e.repo, e.repo, e.reportsDB, e.scheduler)
	e.rooms = service.NewRoomService(service.RoomServiceDeps{
		Registry:  e.registry,
		Rooms:     e.repo,
		Feedback:  e.repo,
		ReportsDB: e.reportsDB,
		Reports:   e.reports,
		Tokens:    e.tokens,
		RoomTTL:   24 * time.Hour,
	})
}

// initRoom 直接写入房间初始状态，跳过邀请码流程。
func (e *testEnv) initRoom(t *testing.T, roomID string, totalPages int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.repo.InitRoomState(ctx, roomID, repository.RoomState{Status: domain.StatusLive, TotalPages: totalPages}, time.Hour))
	require.NoError(t, e.repo.InitFeedback(ctx, roomID, totalPages, time.Hour))
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
