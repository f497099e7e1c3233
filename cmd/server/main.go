package main

import (
	"context"
	"fmt"
	"log"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/agent"
	"github.com/orgpulse/orgpulse_server/internal/api"
	"github.com/orgpulse/orgpulse_server/internal/api/handler"
	"github.com/orgpulse/orgpulse_server/internal/database"
	"github.com/orgpulse/orgpulse_server/internal/orchestrator"
	"github.com/orgpulse/orgpulse_server/internal/pkg/pubsub"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/pkg/ws"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/scheduler"
	"github.com/orgpulse/orgpulse_server/internal/service"
	"github.com/orgpulse/orgpulse_server/internal/trigger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Repository
	tenantRepo := repository.NewTenantRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	runRepo := repository.NewRunRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	execRepo := repository.NewExecutionRepository(db)
	reanalysisRepo := repository.NewReAnalysisRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// 初始化队列与触发引擎
	jobQueue := queue.New(jobRepo, rdb)
	triggerEngine := trigger.NewEngine(ruleRepo, execRepo, jobQueue, cfg)
	sched := scheduler.New(subjectRepo, reanalysisRepo, runRepo, jobQueue, cfg)

	// API 进程不执行分析，编排器仅用于运行创建与取消；
	// 取消正在 worker 进程执行的运行时经 publisher 广播取消信号
	orch := orchestrator.New(runRepo, tenantRepo, subjectRepo, agent.Registry{}, nil)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 WebSocket Hub，订阅 worker 发布的运行进度
	wsHub := ws.NewHub()
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
			if err := wsHub.SendToTenant(msg.TenantID, msg.RunID, &ws.Message{
				Type: msg.Type,
				Data: msg,
			}); err != nil {
				log.Printf("Failed to push progress to tenant %d: %v", msg.TenantID, err)
			}
		})
		if err != nil {
			log.Printf("Progress subscription stopped: %v", err)
		}
	}()
	log.Println("WebSocket hub started")

	// 初始化 Service
	authService := service.NewAuthService(tenantRepo, cfg)
	runService := service.NewRunService(runRepo, snapshotRepo, jobQueue, orch, publisher, cfg)
	snapshotService := service.NewSnapshotService(snapshotRepo)
	ruleService := service.NewRuleService(ruleRepo, execRepo)
	triggerService := service.NewTriggerService(snapshotRepo, subjectRepo, reanalysisRepo, triggerEngine, sched)
	queueService := service.NewQueueService(jobRepo, jobQueue)

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	runHandler := handler.NewRunHandler(runService)
	snapshotHandler := handler.NewSnapshotHandler(snapshotService)
	ruleHandler := handler.NewRuleHandler(ruleService)
	triggerHandler := handler.NewTriggerHandler(triggerService)
	queueHandler := handler.NewQueueHandler(queueService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		runHandler,
		snapshotHandler,
		ruleHandler,
		triggerHandler,
		queueHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
