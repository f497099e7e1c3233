package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/database"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/scheduler"
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

	jobQueue := queue.New(repository.NewJobRepository(db), rdb)
	sched := scheduler.New(
		repository.NewSubjectRepository(db),
		repository.NewReAnalysisRepository(db),
		repository.NewRunRepository(db),
		jobQueue,
		cfg,
	)

	sched.Start()
	log.Println("Scheduler started")

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	sched.Stop()
	log.Println("Scheduler stopped")
}
