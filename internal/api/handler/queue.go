package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/internal/api/middleware"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/service"
)

type QueueHandler struct {
	queueService *service.QueueService
}

func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
	}
}

// Status 各队列深度与任务状态统计
// GET /api/v1/queues
func (h *QueueHandler) Status(c *gin.Context) {
	if _, ok := middleware.GetTenantID(c); !ok {
		response.AuthError(c, "")
		return
	}

	items, err := h.queueService.Status(c.Request.Context())
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, items)
}
