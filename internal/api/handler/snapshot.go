package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/internal/api/middleware"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/service"
)

type SnapshotHandler struct {
	snapshotService *service.SnapshotService
}

func NewSnapshotHandler(snapshotService *service.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{
		snapshotService: snapshotService,
	}
}

// Latest 租户最新快照
// GET /api/v1/snapshots/latest
func (h *SnapshotHandler) Latest(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	snap, err := h.snapshotService.Latest(tenantID)
	if err != nil {
		switch err {
		case service.ErrSnapshotNotFound:
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, snap)
}

// Get 按 ID 查询快照
// GET /api/v1/snapshots/:id
func (h *SnapshotHandler) Get(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	snapshotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的快照ID")
		return
	}

	snap, err := h.snapshotService.Get(tenantID, snapshotID)
	if err != nil {
		switch err {
		case service.ErrSnapshotNotFound:
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, snap)
}

// List 快照历史，按生成时间倒序
// GET /api/v1/snapshots
func (h *SnapshotHandler) List(c *gin.Context) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, pageSize := pagination(c)

	items, total, err := h.snapshotService.List(tenantID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
