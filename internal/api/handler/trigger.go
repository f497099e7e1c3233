package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/internal/api/middleware"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/service"
)

type TriggerHandler struct {
	triggerService *service.TriggerService
}

func NewTriggerHandler(triggerService *service.TriggerService) *TriggerHandler {
	return &TriggerHandler{
		triggerService: triggerService,
	}
}

// Manual 手动触发：rule_id 重投递规则动作，subject_id 登记重分析
// POST /api/v1/trigger/manual
func (h *TriggerHandler) Manual(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ManualTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.triggerService.Manual(c.Request.Context(), tenantID, &req)
	if err != nil {
		switch err {
		case service.ErrNothingToTrigger:
			response.ParamError(c, err.Error())
		case service.ErrNoSnapshot, service.ErrRuleNotFound, service.ErrSubjectNotFound:
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}
