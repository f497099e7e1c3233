package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/api/middleware"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/service"
	"github.com/orgpulse/orgpulse_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupAuthHandler(t *testing.T) (*AuthHandler, *testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:      "test-secret-key",
			ExpireHours: 24,
		},
	}

	authService := service.NewAuthService(repository.NewTenantRepository(db), cfg)
	handler := NewAuthHandler(authService)

	ctx := &testContext{DB: db}
	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return handler, ctx, cleanup
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// mockAuth 模拟认证中间件
func mockAuth(tenantID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.TenantIDKey, tenantID)
		c.Next()
	}
}

func TestAuthHandler_Token_Success(t *testing.T) {
	handler, ctx, cleanup := setupAuthHandler(t)
	defer cleanup()

	hash, err := service.HashAPIKey("sk-orgpulse-test")
	require.NoError(t, err)
	tenant := testutil.TestTenant(t, ctx.DB, func(tn *model.Tenant) {
		tn.APIKeyHash = hash
	})

	router := gin.New()
	router.POST("/auth/token", handler.Token)

	w := performRequest(router, "POST", "/auth/token", dto.TokenRequest{
		TenantID: tenant.ID,
		APIKey:   "sk-orgpulse-test",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["token"])
}

func TestAuthHandler_Token_WrongKey(t *testing.T) {
	handler, ctx, cleanup := setupAuthHandler(t)
	defer cleanup()

	hash, err := service.HashAPIKey("sk-orgpulse-test")
	require.NoError(t, err)
	tenant := testutil.TestTenant(t, ctx.DB, func(tn *model.Tenant) {
		tn.APIKeyHash = hash
	})

	router := gin.New()
	router.POST("/auth/token", handler.Token)

	w := performRequest(router, "POST", "/auth/token", dto.TokenRequest{
		TenantID: tenant.ID,
		APIKey:   "sk-orgpulse-wrong",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuthHandler_Token_MissingFields(t *testing.T) {
	handler, _, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/auth/token", handler.Token)

	w := performRequest(router, "POST", "/auth/token", map[string]interface{}{
		"tenant_id": 1,
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}
