package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgpulse/orgpulse_server/internal/agent"
	"github.com/orgpulse/orgpulse_server/internal/consensus"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/provider"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/testutil"
	"gorm.io/gorm"
)

type fakeAgent struct {
	domain string
	run    func(ctx context.Context, in agent.RunInput) (*consensus.Result, error)
}

func (f *fakeAgent) Domain() string { return f.domain }
func (f *fakeAgent) Run(ctx context.Context, in agent.RunInput) (*consensus.Result, error) {
	return f.run(ctx, in)
}

func okAgent(domain string, score float64) agent.Agent {
	return &fakeAgent{domain: domain, run: func(ctx context.Context, in agent.RunInput) (*consensus.Result, error) {
		return &consensus.Result{
			Domain:         domain,
			Response:       &provider.Response{Provider: "alpha", Score: score},
			MergedScore:    score,
			ConsensusScore: 1.0,
		}, nil
	}}
}

func lowConfAgent(domain string) agent.Agent {
	return &fakeAgent{domain: domain, run: func(ctx context.Context, in agent.RunInput) (*consensus.Result, error) {
		return nil, &consensus.LowConfidenceError{
			Domain:    domain,
			Score:     0.2,
			Threshold: 0.7,
			Responses: []*provider.Response{{Provider: "a", Score: 20}, {Provider: "b", Score: 90}},
		}
	}}
}

func unavailableAgent(domain string) agent.Agent {
	return &fakeAgent{domain: domain, run: func(ctx context.Context, in agent.RunInput) (*consensus.Result, error) {
		return nil, consensus.ErrProviderUnavailable
	}}
}

func setupOrchestrator(t *testing.T, agents agent.Registry) (*Orchestrator, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	o := New(
		repository.NewRunRepository(db),
		repository.NewTenantRepository(db),
		repository.NewSubjectRepository(db),
		agents,
		nil,
	)
	return o, db, func() { testutil.CleanupTestDB(t, db) }
}

func TestExecute_AllDomainsOK(t *testing.T) {
	agents := agent.Registry{
		"structure": okAgent("structure", 72),
		"culture":   okAgent("culture", 88),
	}
	o, db, cleanup := setupOrchestrator(t, agents)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID)

	require.NoError(t, o.Execute(context.Background(), run.ID))

	reloaded, err := repository.NewRunRepository(db).GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, reloaded.Status)
	assert.Equal(t, 100, reloaded.Progress)
	assert.Equal(t, model.DomainStatusOK, reloaded.DomainStatuses["structure"])
	assert.Equal(t, model.DomainStatusOK, reloaded.DomainStatuses["culture"])
	assert.NotNil(t, reloaded.CompletedAt)
}

func TestExecute_PartialSuccess(t *testing.T) {
	// 一个域低置信、一个域不可用不影响成功域；运行仍标记 completed
	agents := agent.Registry{
		"structure":   okAgent("structure", 45),
		"culture":     lowConfAgent("culture"),
		"performance": unavailableAgent("performance"),
	}
	o, db, cleanup := setupOrchestrator(t, agents)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID, func(r *model.AnalysisRun) {
		r.RequestedDomains = model.StringArray{"structure", "culture", "performance"}
	})

	require.NoError(t, o.Execute(context.Background(), run.ID))

	reloaded, err := repository.NewRunRepository(db).GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, reloaded.Status)
	assert.Equal(t, model.DomainStatusOK, reloaded.DomainStatuses["structure"])
	assert.Equal(t, model.DomainStatusLowConfidence, reloaded.DomainStatuses["culture"])
	assert.Equal(t, model.DomainStatusUnavailable, reloaded.DomainStatuses["performance"])

	// 低置信域的原始响应必须保留
	raw, ok := reloaded.RawResults["culture"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, raw, "responses")
}

func TestExecute_AllDomainsFail(t *testing.T) {
	agents := agent.Registry{
		"structure": unavailableAgent("structure"),
		"culture":   lowConfAgent("culture"),
	}
	o, db, cleanup := setupOrchestrator(t, agents)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID)

	require.NoError(t, o.Execute(context.Background(), run.ID))

	reloaded, err := repository.NewRunRepository(db).GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, reloaded.Status)
	assert.Equal(t, "no domain reached consensus", reloaded.FailureReason)
}

func TestExecute_UnknownDomain(t *testing.T) {
	agents := agent.Registry{"structure": okAgent("structure", 60)}
	o, db, cleanup := setupOrchestrator(t, agents)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID, func(r *model.AnalysisRun) {
		r.RequestedDomains = model.StringArray{"structure", "astrology"}
	})

	require.NoError(t, o.Execute(context.Background(), run.ID))

	reloaded, err := repository.NewRunRepository(db).GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, reloaded.Status)
	assert.Equal(t, model.DomainStatusUnavailable, reloaded.DomainStatuses["astrology"])
}

func TestExecute_TerminalRunSkipped(t *testing.T) {
	agents := agent.Registry{"structure": okAgent("structure", 60)}
	o, db, cleanup := setupOrchestrator(t, agents)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID, testutil.WithRunStatus(model.RunStatusCompleted))

	// at-least-once 重复投递不得重新执行
	require.NoError(t, o.Execute(context.Background(), run.ID))

	reloaded, err := repository.NewRunRepository(db).GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, reloaded.Status)
	assert.Equal(t, 0, reloaded.Progress)
}

func TestExecute_Cancel(t *testing.T) {
	started := make(chan struct{})
	blocking := &fakeAgent{domain: "structure", run: func(ctx context.Context, in agent.RunInput) (*consensus.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o, db, cleanup := setupOrchestrator(t, agent.Registry{"structure": blocking})
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	run := testutil.TestRun(t, db, tenant.ID, func(r *model.AnalysisRun) {
		r.RequestedDomains = model.StringArray{"structure"}
	})

	done := make(chan error, 1)
	go func() {
		done <- o.Execute(context.Background(), run.ID)
	}()

	<-started
	assert.True(t, o.Cancel(run.ID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRunCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("execute did not return after cancel")
	}

	reloaded, err := repository.NewRunRepository(db).GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, reloaded.Status)
	assert.Equal(t, model.RunReasonCancelled, reloaded.FailureReason)
}

func TestExecute_SubjectBaselineUpdated(t *testing.T) {
	agents := agent.Registry{"structure": okAgent("structure", 60)}
	o, db, cleanup := setupOrchestrator(t, agents)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)
	subject := testutil.TestSubject(t, db, tenant.ID,
		testutil.WithStrategyVersion(3), testutil.WithLearningCount(7))
	run := testutil.TestRun(t, db, tenant.ID, func(r *model.AnalysisRun) {
		r.RequestedDomains = model.StringArray{"structure"}
		r.SubjectID = subject.ID
	})

	require.NoError(t, o.Execute(context.Background(), run.ID))

	reloaded, err := repository.NewSubjectRepository(db).GetByID(subject.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastAnalyzedAt)
	assert.Equal(t, 3, reloaded.AnalyzedStrategyVersion)
	assert.Equal(t, 7, reloaded.AnalyzedLearningCount)
}

func TestExecute_RunNotFound(t *testing.T) {
	o, _, cleanup := setupOrchestrator(t, agent.Registry{})
	defer cleanup()

	err := o.Execute(context.Background(), 9999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
