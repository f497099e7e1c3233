package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/agent"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/orchestrator"
	"github.com/orgpulse/orgpulse_server/internal/pkg/pubsub"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/service"
	"github.com/orgpulse/orgpulse_server/internal/testutil"
)

// testContext 本地测试上下文
type testContext struct {
	DB *gorm.DB
}

func setupRunHandler(t *testing.T) (*RunHandler, *testContext, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db := testutil.SetupTestDB(t)
	runs := repository.NewRunRepository(db)
	q := queue.New(repository.NewJobRepository(db), client)
	orch := orchestrator.New(runs, repository.NewTenantRepository(db),
		repository.NewSubjectRepository(db), agent.Registry{}, nil)

	runService := service.NewRunService(runs, repository.NewSnapshotRepository(db), q, orch,
		pubsub.NewPublisher(client), &config.Config{Queues: map[string]config.QueueConfig{}})
	handler := NewRunHandler(runService)

	ctx := &testContext{DB: db}
	cleanup := func() {
		client.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}

	return handler, ctx, cleanup
}

func TestRunHandler_Create_Success(t *testing.T) {
	handler, ctx, cleanup := setupRunHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.POST("/runs", handler.Create)

	w := performRequest(router, "POST", "/runs", dto.CreateRunRequest{
		Domains: []string{"structure", "culture"},
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotZero(t, data["run_id"])
}

func TestRunHandler_Create_InvalidDomain(t *testing.T) {
	handler, ctx, cleanup := setupRunHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.POST("/runs", handler.Create)

	w := performRequest(router, "POST", "/runs", dto.CreateRunRequest{
		Domains: []string{"astrology"},
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestRunHandler_Get_NotFound(t *testing.T) {
	handler, ctx, cleanup := setupRunHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.GET("/runs/:id", handler.Get)

	w := performRequest(router, "GET", "/runs/99999", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestRunHandler_Get_OtherTenant(t *testing.T) {
	handler, ctx, cleanup := setupRunHandler(t)
	defer cleanup()

	tenantA := testutil.TestTenant(t, ctx.DB)
	tenantB := testutil.TestTenant(t, ctx.DB)
	run := testutil.TestRun(t, ctx.DB, tenantA.ID)

	router := gin.New()
	router.Use(mockAuth(tenantB.ID))
	router.GET("/runs/:id", handler.Get)

	w := performRequest(router, "GET", fmt.Sprintf("/runs/%d", run.ID), nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestRunHandler_Cancel_Terminal(t *testing.T) {
	handler, ctx, cleanup := setupRunHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)
	run := testutil.TestRun(t, ctx.DB, tenant.ID, testutil.WithRunStatus("completed"))

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.POST("/runs/:id/cancel", handler.Cancel)

	w := performRequest(router, "POST", fmt.Sprintf("/runs/%d/cancel", run.ID), nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeRunTerminal, resp.Code)
}

func TestRunHandler_List(t *testing.T) {
	handler, ctx, cleanup := setupRunHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)
	testutil.TestRun(t, ctx.DB, tenant.ID)
	testutil.TestRun(t, ctx.DB, tenant.ID)

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.GET("/runs", handler.List)

	w := performRequest(router, "GET", "/runs?page=1&page_size=10", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, data["total"])
}
