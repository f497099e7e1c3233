package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/testutil"
)

func TestRunRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)

	run := &model.AnalysisRun{
		TenantID:         tenant.ID,
		RequestedDomains: model.StringArray{"structure", "culture"},
		Status:           model.RunStatusPending,
		TriggeredBy:      "api",
	}

	err := repo.Create(run)
	require.NoError(t, err)
	assert.NotZero(t, run.ID)
}

func TestRunRepository_GetActiveByIdempotencyKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)

	run := testutil.TestRun(t, db, tenant.ID, func(r *model.AnalysisRun) {
		r.IdempotencyKey = "req-42"
	})

	found, err := repo.GetActiveByIdempotencyKey(tenant.ID, "req-42")
	require.NoError(t, err)
	assert.Equal(t, run.ID, found.ID)

	// 其他租户查不到
	other := testutil.TestTenant(t, db)
	_, err = repo.GetActiveByIdempotencyKey(other.ID, "req-42")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRunRepository_GetActiveByIdempotencyKey_TerminalExcluded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)

	testutil.TestRun(t, db, tenant.ID,
		testutil.WithRunStatus(model.RunStatusCompleted),
		func(r *model.AnalysisRun) { r.IdempotencyKey = "req-done" })

	_, err := repo.GetActiveByIdempotencyKey(tenant.ID, "req-done")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRunRepository_MarkFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID)

	require.NoError(t, repo.MarkFailed(run.ID, "provider outage"))

	found, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, found.Status)
	assert.Equal(t, "provider outage", found.FailureReason)
}

func TestRunRepository_Transition_GuardsTerminal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID, testutil.WithRunStatus(model.RunStatusRunning))

	// 运行被取消为终态后，执行方的收尾回写不得生效
	cancelled, err := repo.CancelActive(run.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	run.Status = model.RunStatusCompleted
	run.Progress = 100
	moved, err := repo.Transition(run, model.RunStatusRunning)
	require.NoError(t, err)
	assert.False(t, moved)

	found, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, found.Status)
	assert.Equal(t, model.RunReasonCancelled, found.FailureReason)
}

func TestRunRepository_Transition_FromMatchingStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID, testutil.WithRunStatus(model.RunStatusRunning))

	run.Status = model.RunStatusCompleted
	run.Progress = 100
	run.DomainStatuses = model.StringMap{"structure": model.DomainStatusOK}
	moved, err := repo.Transition(run, model.RunStatusRunning)
	require.NoError(t, err)
	assert.True(t, moved)

	found, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, found.Status)
	assert.Equal(t, model.DomainStatusOK, found.DomainStatuses["structure"])
}

func TestRunRepository_CancelActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)

	pending := testutil.TestRun(t, db, tenant.ID)
	cancelled, err := repo.CancelActive(pending.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	found, err := repo.GetByID(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, found.Status)
	assert.Equal(t, model.RunReasonCancelled, found.FailureReason)
	assert.NotNil(t, found.CompletedAt)

	// 已完成的运行不受影响
	completed := testutil.TestRun(t, db, tenant.ID, testutil.WithRunStatus(model.RunStatusCompleted))
	cancelled, err = repo.CancelActive(completed.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	found, err = repo.GetByID(completed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, found.Status)
}

func TestRunRepository_ListByTenant_StatusFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewRunRepository(db)
	tenant := testutil.TestTenant(t, db)

	testutil.TestRun(t, db, tenant.ID, testutil.WithRunStatus(model.RunStatusCompleted))
	testutil.TestRun(t, db, tenant.ID, testutil.WithRunStatus(model.RunStatusCompleted))
	testutil.TestRun(t, db, tenant.ID, testutil.WithRunStatus(model.RunStatusFailed))

	runs, total, err := repo.ListByTenant(tenant.ID, 1, 10, model.RunStatusCompleted)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, runs, 2)
}
