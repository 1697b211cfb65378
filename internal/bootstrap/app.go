package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"live-session/internal/gateway"
	httpHandler "live-session/internal/handler/http"
	wsHandler "live-session/internal/handler/websocket"
	"live-session/internal/hub"
	gormpersistence "live-session/internal/infra/persistence/gorm"
	"live-session/internal/infra/setup"
	redisstate "live-session/internal/infra/state/redis"
	"live-session/internal/middleware"
	"live-session/internal/service"
	"live-session/internal/tasks"
	"live-session/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
	cancel         context.CancelFunc
}

// NewApp 创建并初始化应用的所有组件
func NewApp(cfg *Config) (*App, error) {
	log := NewLogger(cfg)
	// 各组件通过包级 logrus 记录日志，保持同样的格式与级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(log.Level)
	log.Infof("Logger initialized (Level: %s)", log.Level.String())

	// 1. 初始化基础设施
	db, err := setup.InitDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Infrastructure initialized successfully")

	// 2. 初始化 Repositories
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.RoomTTL)
	reportRepo := gormpersistence.NewGormReportRepository(db)
	relay := redisstate.NewPubSubRelay(redisClient, redisstate.DefaultBroadcastChannel)

	// 3. 初始化 Hub 与 Services。Hub 是服务的广播出口，Router 在服务创建后注入。
	tokens, err := service.NewTokenService(cfg.JWTSecret, cfg.PresenterTokenTTL, cfg.AudienceTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create TokenService: %w", err)
	}
	hubInstance := hub.NewHub(gateway.NewAuthorizer(tokens), nil, relay, stateRepo)

	registry := service.NewSessionRegistry(stateRepo, cfg.RoomTTL, cfg.CodeGraceTTL)
	limiter := service.NewRateLimiter(stateRepo, service.DefaultActionLimit, service.DefaultActionWindow)
	aggregator := service.NewLiveAggregator(service.AggregatorStores{
		Rooms:     stateRepo,
		Questions: stateRepo,
		Events:    stateRepo,
		Feedback:  stateRepo,
		Revisits:  stateRepo,
		Presence:  stateRepo,
	}, hubInstance)
	questionService := service.NewQuestionService(stateRepo, stateRepo, stateRepo, limiter, hubInstance)
	reactionService := service.NewReactionService(stateRepo, stateRepo, limiter, aggregator, hubInstance)
	pageService := service.NewPageService(stateRepo, aggregator, hubInstance)
	reportService := service.NewReportService(aggregator, stateRepo, stateRepo, reportRepo,
		worker.NewAsynqReportScheduler(asynqClient, "default"))
	roomService := service.NewRoomService(service.RoomServiceDeps{
		Registry:  registry,
		Rooms:     stateRepo,
		Feedback:  stateRepo,
		ReportsDB: reportRepo,
		Reports:   reportService,
		Tokens:    tokens,
		RoomTTL:   cfg.RoomTTL,
	})
	hubInstance.SetDispatcher(wsHandler.NewRouter(pageService, questionService, reactionService))
	log.Info("Services initialized")

	// 4. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, cfg.WorkerConcurrency,
		worker.NewReportSnapshotHandler(reportRepo, stateRepo),
		worker.NewSnapshotCheckHandler(hubInstance, reportService),
		log)

	// 5. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	api := router.Group("/api", middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow))
	httpHandler.Handlers{
		Rooms:     httpHandler.NewRoomHandler(roomService),
		Questions: httpHandler.NewQuestionHandler(questionService),
		Reports:   httpHandler.NewReportHandler(aggregator, reportService),
	}.Register(api, middleware.Auth(tokens))

	ws := wsHandler.NewWebSocketHandler(hubInstance, gateway.NewHandshaker(tokens, cfg.AllowAnonymousHandshake), cfg.CORSAllowedOrigin)
	for _, endpoint := range []struct {
		path   string
		handle gin.HandlerFunc
	}{
		{"/ws/presenter", ws.Presenter},
		{"/ws/audience", ws.Audience},
	} {
		router.GET(endpoint.path, endpoint.handle)
		router.GET(endpoint.path+"/info", endpoint.handle)
		router.GET(endpoint.path+"/:server/:session/:transport", endpoint.handle)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Hub.Run(ctx)
	a.Log.Info("Hub routine started")

	go func() {
		if err := a.AsynqServer.Start(); err != nil {
			a.Log.WithError(err).Error("Asynq worker server stopped with error")
		}
	}()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// registerPeriodicTasks 注册为活跃房间定期生成报告快照的任务
func (a *App) registerPeriodicTasks() {
	if a.Config.SnapshotSchedule == "" {
		return
	}
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	payload, err := tasks.NewReportPeriodicCheckTask()
	if err != nil {
		a.Log.Errorf("Failed to create periodic snapshot task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeReportPeriodicCheck, payload)
	entryID, err := scheduler.Register(a.Config.SnapshotSchedule, task, asynq.Queue("low"))
	if err != nil {
		a.Log.Errorf("Could not register periodic snapshot task: %v", err)
		return
	}
	a.Log.Infof("Periodic snapshot task registered with schedule '%s' (EntryID: %s)", a.Config.SnapshotSchedule, entryID)

	a.scheduler = scheduler
	go func() {
		if err := scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// Hub 关闭所有客户端连接，观众随之移出在线集合
	if a.cancel != nil {
		a.cancel()
	}
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	a.AsynqServer.Shutdown()

	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq client: %v", err)
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}
	a.Log.Info("Application shutdown complete.")
}

// Migrate 只执行数据库迁移
func Migrate(cfg *Config) error {
	db, err := setup.InitDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return setup.MigrateDB(db)
}
