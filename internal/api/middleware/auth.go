package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orgpulse/orgpulse_server/internal/pkg/jwt"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
)

const (
	TenantIDKey = "tenantID"
)

// Auth JWT 认证中间件，令牌由 /auth/token 用租户 API Key 换取
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(TenantIDKey, claims.TenantID)
		c.Next()
	}
}

// GetTenantID 从上下文获取租户 ID
func GetTenantID(c *gin.Context) (int64, bool) {
	tenantID, exists := c.Get(TenantIDKey)
	if !exists {
		return 0, false
	}
	id, ok := tenantID.(int64)
	return id, ok
}
