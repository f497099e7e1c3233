package handler

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/pkg/response"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/scheduler"
	"github.com/orgpulse/orgpulse_server/internal/service"
	"github.com/orgpulse/orgpulse_server/internal/testutil"
	"github.com/orgpulse/orgpulse_server/internal/trigger"
)

func setupTriggerHandler(t *testing.T) (*TriggerHandler, *testContext, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db := testutil.SetupTestDB(t)
	q := queue.New(repository.NewJobRepository(db), client)
	cfg := &config.Config{Queues: map[string]config.QueueConfig{}}

	engine := trigger.NewEngine(repository.NewRuleRepository(db),
		repository.NewExecutionRepository(db), q, cfg)
	sched := scheduler.New(repository.NewSubjectRepository(db),
		repository.NewReAnalysisRepository(db), repository.NewRunRepository(db), q, cfg)

	triggerService := service.NewTriggerService(repository.NewSnapshotRepository(db),
		repository.NewSubjectRepository(db), repository.NewReAnalysisRepository(db),
		engine, sched)
	handler := NewTriggerHandler(triggerService)

	ctx := &testContext{DB: db}
	cleanup := func() {
		client.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}

	return handler, ctx, cleanup
}

func TestTriggerHandler_Manual_Subject(t *testing.T) {
	handler, ctx, cleanup := setupTriggerHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)
	subject := testutil.TestSubject(t, ctx.DB, tenant.ID)

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.POST("/trigger/manual", handler.Manual)

	w := performRequest(router, "POST", "/trigger/manual", dto.ManualTriggerRequest{
		SubjectID: subject.ID,
		Reason:    "reorg review",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["triggered"])
}

func TestTriggerHandler_Manual_RuleNoSnapshot(t *testing.T) {
	handler, ctx, cleanup := setupTriggerHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)
	rule := testutil.TestRule(t, ctx.DB, tenant.ID)

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.POST("/trigger/manual", handler.Manual)

	w := performRequest(router, "POST", "/trigger/manual", dto.ManualTriggerRequest{
		RuleID: rule.ID,
		Reason: "manual check",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestTriggerHandler_Manual_NothingSpecified(t *testing.T) {
	handler, ctx, cleanup := setupTriggerHandler(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, ctx.DB)

	router := gin.New()
	router.Use(mockAuth(tenant.ID))
	router.POST("/trigger/manual", handler.Manual)

	w := performRequest(router, "POST", "/trigger/manual", dto.ManualTriggerRequest{
		Reason: "nothing",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}
