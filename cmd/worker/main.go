package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/agent"
	"github.com/orgpulse/orgpulse_server/internal/database"
	"github.com/orgpulse/orgpulse_server/internal/orchestrator"
	"github.com/orgpulse/orgpulse_server/internal/pkg/archive"
	"github.com/orgpulse/orgpulse_server/internal/pkg/email"
	"github.com/orgpulse/orgpulse_server/internal/pkg/pubsub"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/provider"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/trigger"
	"github.com/orgpulse/orgpulse_server/internal/worker"
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

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化归档存储：OSS 配置缺失时落到本地目录
	var store archive.Store
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossStore, err := archive.NewOSSStore(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS store: %v", err)
		} else {
			store = ossStore
			log.Println("OSS archive store initialized")
		}
	}
	if store == nil {
		localStore, err := archive.NewLocalStore("")
		if err != nil {
			log.Printf("Warning: Failed to init local archive store: %v", err)
		} else {
			store = localStore
		}
	}

	// 初始化邮件服务（可选）
	var mailer *email.Service
	if cfg.Email.SMTPHost != "" {
		mailer = email.NewService(&cfg.Email)
		log.Println("Email service initialized")
	}

	// 初始化 Repository
	tenantRepo := repository.NewTenantRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	runRepo := repository.NewRunRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	execRepo := repository.NewExecutionRepository(db)
	reanalysisRepo := repository.NewReAnalysisRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// 初始化提供商客户端与域代理
	var clients []provider.Client
	var primary string
	for _, pc := range cfg.Providers {
		clients = append(clients, provider.NewOpenAIClient(pc))
		if pc.Primary {
			primary = pc.Name
		}
	}
	if len(clients) == 0 {
		log.Println("Warning: no providers configured, analysis runs will fail")
	}

	agents := agent.NewRegistry(agent.Deps{
		Providers:   clients,
		Primary:     primary,
		Threshold:   cfg.Consensus.Threshold,
		Tolerance:   cfg.Consensus.Tolerance,
		CallTimeout: cfg.Consensus.CallTimeout(),
	})

	// 初始化编排器与触发引擎
	publisher := pubsub.NewPublisher(rdb)
	orch := orchestrator.New(runRepo, tenantRepo, subjectRepo, agents, publisher)

	jobQueue := queue.New(jobRepo, rdb)
	engine := trigger.NewEngine(ruleRepo, execRepo, jobQueue, cfg)

	// 注册任务处理器并启动 worker 池
	handlers := worker.NewHandlers(runRepo, snapshotRepo, execRepo, ruleRepo,
		reanalysisRepo, orch, engine, store, mailer)

	pool := worker.NewPool(jobQueue, cfg)
	handlers.RegisterAll(pool)
	pool.Start()
	log.Println("Worker pool started")

	// 订阅 API 进程广播的取消信号，中断本进程在途的运行
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.SubscribeCancel(context.Background(), func(msg *pubsub.CancelMessage) {
			if orch.Cancel(msg.RunID) {
				log.Printf("Run %d: cancel signal applied", msg.RunID)
			}
		})
		if err != nil {
			log.Printf("Cancel subscription stopped: %v", err)
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	pool.Stop()
	log.Println("Worker stopped")
}
