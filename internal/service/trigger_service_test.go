package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/scheduler"
	"github.com/orgpulse/orgpulse_server/internal/testutil"
	"github.com/orgpulse/orgpulse_server/internal/trigger"
)

func setupTriggerService(t *testing.T) (*TriggerService, *gorm.DB, func()) {
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

	svc := NewTriggerService(repository.NewSnapshotRepository(db),
		repository.NewSubjectRepository(db), repository.NewReAnalysisRepository(db),
		engine, sched)

	cleanup := func() {
		client.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}
	return svc, db, cleanup
}

func TestManualTrigger_Rule(t *testing.T) {
	svc, db, cleanup := setupTriggerService(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	// 条件不命中也能手动投递
	rule := testutil.TestRule(t, db, tenant.ID,
		testutil.WithCondition("dimensions.structure_health", model.ComparatorLT, 10))
	testutil.TestSnapshot(t, db, tenant.ID, 1, map[string]*float64{
		model.DimStructureHealth: testutil.Float64Ptr(90),
	})

	resp, err := svc.Manual(context.Background(), tenant.ID, &dto.ManualTriggerRequest{
		RuleID: rule.ID, Reason: "operator check",
	})
	require.NoError(t, err)
	assert.True(t, resp.Triggered)
	assert.NotZero(t, resp.JobID)

	var execs []*model.TriggerExecution
	require.NoError(t, db.Find(&execs).Error)
	require.Len(t, execs, 1)
	assert.Equal(t, rule.ID, execs[0].RuleID)
}

func TestManualTrigger_Rule_NoSnapshot(t *testing.T) {
	svc, db, cleanup := setupTriggerService(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	rule := testutil.TestRule(t, db, tenant.ID)

	_, err := svc.Manual(context.Background(), tenant.ID, &dto.ManualTriggerRequest{
		RuleID: rule.ID, Reason: "no snapshot yet",
	})
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestManualTrigger_Rule_Suppressed(t *testing.T) {
	svc, db, cleanup := setupTriggerService(t)
	defer cleanup()
	ctx := context.Background()

	tenant := testutil.TestTenant(t, db)
	rule := testutil.TestRule(t, db, tenant.ID)
	testutil.TestSnapshot(t, db, tenant.ID, 1, map[string]*float64{})

	first, err := svc.Manual(ctx, tenant.ID, &dto.ManualTriggerRequest{RuleID: rule.ID, Reason: "x"})
	require.NoError(t, err)
	require.True(t, first.Triggered)

	second, err := svc.Manual(ctx, tenant.ID, &dto.ManualTriggerRequest{RuleID: rule.ID, Reason: "x"})
	require.NoError(t, err)
	assert.False(t, second.Triggered)
}

func TestManualTrigger_Subject(t *testing.T) {
	svc, db, cleanup := setupTriggerService(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	subject := testutil.TestSubject(t, db, tenant.ID)

	resp, err := svc.Manual(context.Background(), tenant.ID, &dto.ManualTriggerRequest{
		SubjectID: subject.ID, Reason: "reorg",
	})
	require.NoError(t, err)
	assert.True(t, resp.Triggered)
	assert.NotZero(t, resp.RequestID)

	var req model.ReAnalysisRequest
	require.NoError(t, db.First(&req, resp.RequestID).Error)
	assert.Equal(t, "reorg", req.Reason)
	assert.Equal(t, "manual", req.TriggeredBy)
}

func TestManualTrigger_Subject_OtherTenant(t *testing.T) {
	svc, db, cleanup := setupTriggerService(t)
	defer cleanup()

	tenantA := testutil.TestTenant(t, db)
	tenantB := testutil.TestTenant(t, db)
	subject := testutil.TestSubject(t, db, tenantA.ID)

	_, err := svc.Manual(context.Background(), tenantB.ID, &dto.ManualTriggerRequest{
		SubjectID: subject.ID, Reason: "cross tenant",
	})
	assert.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestManualTrigger_NothingSpecified(t *testing.T) {
	svc, db, cleanup := setupTriggerService(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	_, err := svc.Manual(context.Background(), tenant.ID, &dto.ManualTriggerRequest{Reason: "empty"})
	assert.ErrorIs(t, err, ErrNothingToTrigger)
}
