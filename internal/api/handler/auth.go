package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Token 用租户 API Key 换取访问令牌
// POST /api/v1/auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Token(&req)
	if err != nil {
		switch err {
		case service.ErrAuthFailed:
			response.AuthError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}
