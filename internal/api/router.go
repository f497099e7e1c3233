package api

import (
	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/api/handler"
	"github.com/orgpulse/orgpulse_server/internal/api/middleware"
)

type Router struct {
	authHandler      *handler.AuthHandler
	runHandler       *handler.RunHandler
	snapshotHandler  *handler.SnapshotHandler
	ruleHandler      *handler.RuleHandler
	triggerHandler   *handler.TriggerHandler
	queueHandler     *handler.QueueHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	runHandler *handler.RunHandler,
	snapshotHandler *handler.SnapshotHandler,
	ruleHandler *handler.RuleHandler,
	triggerHandler *handler.TriggerHandler,
	queueHandler *handler.QueueHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		runHandler:       runHandler,
		snapshotHandler:  snapshotHandler,
		ruleHandler:      ruleHandler,
		triggerHandler:   triggerHandler,
		queueHandler:     queueHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/token", r.authHandler.Token)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 分析运行
			runs := authenticated.Group("/runs")
			{
				runs.POST("", r.runHandler.Create)
				runs.GET("", r.runHandler.List)
				runs.GET("/:id", r.runHandler.Get)
				runs.GET("/:id/results", r.runHandler.Results)
				runs.POST("/:id/cancel", r.runHandler.Cancel)
			}

			// 组织快照
			snapshots := authenticated.Group("/snapshots")
			{
				snapshots.GET("", r.snapshotHandler.List)
				snapshots.GET("/latest", r.snapshotHandler.Latest)
				snapshots.GET("/:id", r.snapshotHandler.Get)
			}

			// 触发规则
			rules := authenticated.Group("/rules")
			{
				rules.POST("", r.ruleHandler.Create)
				rules.GET("", r.ruleHandler.List)
				rules.PUT("/:id", r.ruleHandler.Update)
				rules.POST("/:id/activate", r.ruleHandler.Activate)
				rules.POST("/:id/deactivate", r.ruleHandler.Deactivate)
			}

			// 触发执行历史
			authenticated.GET("/executions", r.ruleHandler.Executions)

			// 手动触发
			authenticated.POST("/trigger/manual", r.triggerHandler.Manual)

			// 队列状态
			authenticated.GET("/queues", r.queueHandler.Status)
		}
	}

	return engine
}
