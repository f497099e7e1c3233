package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/agent"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/orchestrator"
	"github.com/orgpulse/orgpulse_server/internal/pkg/pubsub"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

var (
	ErrRunNotFound      = errors.New("分析运行不存在")
	ErrInvalidDomains   = errors.New("请求的分析域无效")
	ErrAnalysisInFlight = errors.New("该主体已有进行中的分析")
	ErrRunTerminal      = errors.New("运行已结束，无法取消")
)

type RunService struct {
	runs      *repository.RunRepository
	snapshots *repository.SnapshotRepository
	queue     *queue.Queue
	orch      *orchestrator.Orchestrator
	publisher *pubsub.Publisher
	cfg       *config.Config
}

func NewRunService(
	runs *repository.RunRepository,
	snapshots *repository.SnapshotRepository,
	q *queue.Queue,
	orch *orchestrator.Orchestrator,
	publisher *pubsub.Publisher,
	cfg *config.Config,
) *RunService {
	return &RunService{
		runs:      runs,
		snapshots: snapshots,
		queue:     q,
		orch:      orch,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Create 创建运行并投递分析任务。
// 相同幂等键且原运行未终态时返回已有运行，不重复创建。
func (s *RunService) Create(ctx context.Context, tenantID int64, req *dto.CreateRunRequest) (*dto.CreateRunResponse, error) {
	if err := validateDomains(req.Domains); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.runs.GetActiveByIdempotencyKey(tenantID, req.IdempotencyKey)
		if err == nil {
			return &dto.CreateRunResponse{
				RunID:    existing.ID,
				Status:   existing.Status,
				Existing: true,
			}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		// 客户端未提供幂等键时生成一个，保证重试路径有统一的回查口径
		req.IdempotencyKey = uuid.NewString()
	}

	run := &model.AnalysisRun{
		TenantID:         tenantID,
		IdempotencyKey:   req.IdempotencyKey,
		RequestedDomains: model.StringArray(req.Domains),
		Status:           model.RunStatusPending,
		DomainStatuses:   model.StringMap{},
		RawResults:       model.JSONMap{},
		Attributes:       model.JSONMap(req.Attributes),
		TriggeredBy:      "api",
		SubjectID:        req.SubjectID,
	}
	if err := s.runs.Create(run); err != nil {
		return nil, err
	}

	dispatchKey := ""
	if req.SubjectID != 0 {
		dispatchKey = fmt.Sprintf("subject:%d:analysis", req.SubjectID)
	}

	job, err := s.queue.Enqueue(ctx, model.QueueAnalysis, tenantID,
		model.JSONMap{"run_id": run.ID}, dispatchKey,
		queue.PolicyFromConfig(s.cfg.QueueFor(model.QueueAnalysis)))
	if err != nil {
		if errors.Is(err, queue.ErrDispatchConflict) {
			_ = s.runs.MarkFailed(run.ID, "superseded by in-flight analysis")
			return nil, ErrAnalysisInFlight
		}
		return nil, err
	}

	return &dto.CreateRunResponse{RunID: run.ID, JobID: job.ID, Status: run.Status}, nil
}

// Get 运行状态，供轮询
func (s *RunService) Get(tenantID, runID int64) (*dto.RunStatusResponse, error) {
	run, err := s.getScoped(tenantID, runID)
	if err != nil {
		return nil, err
	}

	return &dto.RunStatusResponse{
		RunID:          run.ID,
		Status:         run.Status,
		Progress:       run.Progress,
		DomainStatuses: run.DomainStatuses,
		FailureReason:  run.FailureReason,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
	}, nil
}

// Results 运行的逐域结果与关联快照
func (s *RunService) Results(tenantID, runID int64) (*dto.RunResultsResponse, error) {
	run, err := s.getScoped(tenantID, runID)
	if err != nil {
		return nil, err
	}

	resp := &dto.RunResultsResponse{
		RunID:          run.ID,
		Status:         run.Status,
		DomainStatuses: run.DomainStatuses,
		RawResults:     run.RawResults,
	}
	if snap, err := s.snapshots.GetBySourceRunID(run.ID); err == nil {
		resp.SnapshotID = snap.ID
	}
	return resp, nil
}

// List 租户的运行列表
func (s *RunService) List(tenantID int64, page, pageSize int, status string) ([]*dto.RunListItem, int64, error) {
	runs, total, err := s.runs.ListByTenant(tenantID, page, pageSize, status)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.RunListItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, &dto.RunListItem{
			ID:          run.ID,
			Status:      run.Status,
			Progress:    run.Progress,
			Domains:     run.RequestedDomains,
			TriggeredBy: run.TriggeredBy,
			CreatedAt:   run.CreatedAt,
			CompletedAt: run.CompletedAt,
		})
	}
	return items, total, nil
}

// Cancel 取消运行：先条件更新落取消终态，再向执行方传播取消信号。
// 编排器的收尾写入同样带状态守卫，已取消的行不会被执行进程改回完成。
func (s *RunService) Cancel(ctx context.Context, tenantID, runID int64) error {
	run, err := s.getScoped(tenantID, runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return ErrRunTerminal
	}

	cancelled, err := s.runs.CancelActive(runID)
	if err != nil {
		return err
	}
	if !cancelled {
		// 加载后运行已先一步到达终态
		return ErrRunTerminal
	}

	if s.orch.Cancel(runID) {
		return nil
	}

	// 运行在 worker 进程执行，经 Redis 广播取消信号。
	// 广播失败也没关系：终态行已写入，执行方的守卫更新不会覆盖它。
	if s.publisher != nil {
		msg := &pubsub.CancelMessage{TenantID: tenantID, RunID: runID}
		if err := s.publisher.PublishCancel(ctx, msg); err != nil {
			log.Printf("Run %d: failed to publish cancel signal: %v", runID, err)
		}
	}
	return nil
}

func (s *RunService) getScoped(tenantID, runID int64) (*model.AnalysisRun, error) {
	run, err := s.runs.GetByID(runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if run.TenantID != tenantID {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func validateDomains(domains []string) error {
	if len(domains) == 0 {
		return ErrInvalidDomains
	}
	known := make(map[string]struct{})
	for _, d := range agent.AllDomains() {
		known[d] = struct{}{}
	}
	for _, d := range domains {
		if _, ok := known[d]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidDomains, d)
		}
	}
	return nil
}
