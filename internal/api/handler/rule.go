package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/internal/api/middleware"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/service"
)

type RuleHandler struct {
	ruleService *service.RuleService
}

func NewRuleHandler(ruleService *service.RuleService) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
	}
}

// Create 创建触发规则
// POST /api/v1/rules
func (h *RuleHandler) Create(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	rule, err := h.ruleService.Create(tenantID, &req)
	if err != nil {
		switch err {
		case service.ErrInvalidRule:
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "规则已创建", rule)
}

// Update 更新触发规则，全局规则对租户只读
// PUT /api/v1/rules/:id
func (h *RuleHandler) Update(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的规则ID")
		return
	}

	var req dto.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	rule, err := h.ruleService.Update(tenantID, ruleID, &req)
	if err != nil {
		switch err {
		case service.ErrRuleNotFound:
			response.NotFoundError(c, err.Error())
		case service.ErrInvalidRule:
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "规则已更新", rule)
}

// Activate 启用规则
// POST /api/v1/rules/:id/activate
func (h *RuleHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate 停用规则
// POST /api/v1/rules/:id/deactivate
func (h *RuleHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *RuleHandler) setActive(c *gin.Context, active bool) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的规则ID")
		return
	}

	if err := h.ruleService.SetActive(tenantID, ruleID, active); err != nil {
		switch err {
		case service.ErrRuleNotFound:
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "规则状态已更新", nil)
}

// List 租户可见规则（含全局规则）
// GET /api/v1/rules
func (h *RuleHandler) List(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, pageSize := pagination(c)

	items, total, err := h.ruleService.List(tenantID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Executions 触发执行历史
// GET /api/v1/executions
func (h *RuleHandler) Executions(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, pageSize := pagination(c)
	outcome := c.Query("outcome")

	items, total, err := h.ruleService.Executions(tenantID, page, pageSize, outcome)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
