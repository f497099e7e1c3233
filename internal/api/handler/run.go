package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/internal/api/middleware"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/service"
)

type RunHandler struct {
	runService *service.RunService
}

func NewRunHandler(runService *service.RunService) *RunHandler {
	return &RunHandler{
		runService: runService,
	}
}

// Create 创建分析运行
// POST /api/v1/runs
func (h *RunHandler) Create(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.runService.Create(c.Request.Context(), tenantID, &req)
	if err != nil {
		switch err {
		case service.ErrInvalidDomains:
			response.ParamError(c, err.Error())
		case service.ErrAnalysisInFlight:
			response.ConflictError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "运行已创建", resp)
}

// Get 查询运行状态
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的运行ID")
		return
	}

	status, err := h.runService.Get(tenantID, runID)
	if err != nil {
		switch err {
		case service.ErrRunNotFound:
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, status)
}

// Results 查询运行的域结果与快照
// GET /api/v1/runs/:id/results
func (h *RunHandler) Results(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的运行ID")
		return
	}

	results, err := h.runService.Results(tenantID, runID)
	if err != nil {
		switch err {
		case service.ErrRunNotFound:
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, results)
}

// List 分页查询租户的运行
// GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, pageSize := pagination(c)
	status := c.Query("status")

	items, total, err := h.runService.List(tenantID, page, pageSize, status)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Cancel 取消运行
// POST /api/v1/runs/:id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的运行ID")
		return
	}

	if err := h.runService.Cancel(c.Request.Context(), tenantID, runID); err != nil {
		switch err {
		case service.ErrRunNotFound:
			response.NotFoundError(c, err.Error())
		case service.ErrRunTerminal:
			response.Error(c, response.CodeRunTerminal, "运行已结束，无法取消")
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "运行已取消", nil)
}

// pagination 解析分页参数，越界回退默认值
func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
