package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/agent"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

const dispatchBatchSize = 50

// Scheduler 重分析调度器：周期性对主体求值信号，命中即登记重分析请求，
// 并把待处理请求转为分析运行投入队列。
type Scheduler struct {
	subjects   *repository.SubjectRepository
	requests   *repository.ReAnalysisRepository
	runs       *repository.RunRepository
	queue      *queue.Queue
	cfg        *config.Config
	signals    []Signal
	stopChan   chan struct{}
	sweepEvery time.Duration
}

func New(
	subjects *repository.SubjectRepository,
	requests *repository.ReAnalysisRepository,
	runs *repository.RunRepository,
	q *queue.Queue,
	cfg *config.Config,
) *Scheduler {
	return &Scheduler{
		subjects: subjects,
		requests: requests,
		runs:     runs,
		queue:    q,
		cfg:      cfg,
		signals: []Signal{
			StalenessSignal(cfg.Scheduler.StalenessDays),
			RoleChangeSignal(),
			StrategyChangeSignal(),
			LearningSignal(cfg.Scheduler.LearningThreshold),
		},
		stopChan:   make(chan struct{}),
		sweepEvery: time.Duration(cfg.Scheduler.SweepIntervalSec) * time.Second,
	}
}

// CheckTriggers 按固定顺序求值信号，首个命中即登记一条重分析请求并返回 true。
// 主体已有 pending 请求时不做任何写入，直接返回 false。
func (s *Scheduler) CheckTriggers(ctx context.Context, subjectID int64) (bool, error) {
	subject, err := s.subjects.GetByID(subjectID)
	if err != nil {
		return false, fmt.Errorf("failed to load subject: %w", err)
	}

	now := time.Now()
	for _, signal := range s.signals {
		matched, reason := signal(subject, now)
		if !matched {
			continue
		}
		created, err := s.enqueueRequest(subject, reason, "scheduler")
		if err != nil {
			return false, err
		}
		return created, nil
	}
	return false, nil
}

// Manual 手动触发重分析，绕过信号求值但仍遵守每主体一条 pending 的约束
func (s *Scheduler) Manual(ctx context.Context, subjectID int64, reason string) (bool, error) {
	subject, err := s.subjects.GetByID(subjectID)
	if err != nil {
		return false, fmt.Errorf("failed to load subject: %w", err)
	}
	if reason == "" {
		reason = "manual request"
	}
	return s.enqueueRequest(subject, reason, "manual")
}

// enqueueRequest 登记请求，pending 去重后返回是否新建
func (s *Scheduler) enqueueRequest(subject *model.Subject, reason, triggeredBy string) (bool, error) {
	pending, err := s.requests.HasPendingForSubject(subject.ID)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}

	req := &model.ReAnalysisRequest{
		SubjectID:   subject.ID,
		TenantID:    subject.TenantID,
		Reason:      reason,
		Status:      model.ReAnalysisStatusPending,
		TriggeredBy: triggeredBy,
	}
	if err := s.requests.Create(req); err != nil {
		return false, err
	}
	log.Printf("Scheduler: re-analysis queued for subject %d (%s)", subject.ID, reason)
	return true, nil
}

// DispatchPending 把待处理请求转为分析运行并入队。
// 调度键冲突说明该主体已有在途分析，请求留待下轮。
func (s *Scheduler) DispatchPending(ctx context.Context) (int, error) {
	reqs, err := s.requests.ListPending(dispatchBatchSize)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, req := range reqs {
		subject, err := s.subjects.GetByID(req.SubjectID)
		if err != nil {
			log.Printf("Scheduler: request %d: failed to load subject %d: %v", req.ID, req.SubjectID, err)
			continue
		}

		run := &model.AnalysisRun{
			TenantID:         req.TenantID,
			SubjectID:        req.SubjectID,
			RequestedDomains: model.StringArray(agent.AllDomains()),
			Status:           model.RunStatusPending,
			TriggeredBy:      req.TriggeredBy,
			Attributes:       subject.Attributes,
		}
		if err := s.runs.Create(run); err != nil {
			log.Printf("Scheduler: request %d: failed to create run: %v", req.ID, err)
			continue
		}

		dispatchKey := fmt.Sprintf("subject:%d:analysis", req.SubjectID)
		payload := model.JSONMap{"run_id": run.ID, "reanalysis_id": req.ID}
		_, err = s.queue.Enqueue(ctx, model.QueueAnalysis, req.TenantID, payload, dispatchKey,
			queue.PolicyFromConfig(s.cfg.QueueFor(model.QueueAnalysis)))
		if err != nil {
			if errors.Is(err, queue.ErrDispatchConflict) {
				// 该主体已有在途分析任务，回收空运行，请求下轮重试
				_ = s.runs.MarkFailed(run.ID, "superseded by in-flight analysis")
				log.Printf("Scheduler: request %d: analysis already in flight for subject %d", req.ID, req.SubjectID)
				continue
			}
			log.Printf("Scheduler: request %d: enqueue failed: %v", req.ID, err)
			continue
		}

		if err := s.requests.MarkDispatched(req.ID, run.ID); err != nil {
			log.Printf("Scheduler: request %d: failed to mark dispatched: %v", req.ID, err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// Start 启动周期扫描
func (s *Scheduler) Start() {
	go s.runSweep()
	log.Println("Scheduler started (signal sweep + pending dispatch)")
}

// Stop 停止周期扫描
func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Scheduler stopped")
}

// runSweep 周期执行信号扫描、请求调度和到期任务回收
func (s *Scheduler) runSweep() {
	interval := s.sweepEvery
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Scheduler) sweepOnce() {
	ctx := context.Background()

	checked, matched := s.sweepSignals(ctx)
	dispatched, err := s.DispatchPending(ctx)
	if err != nil {
		log.Printf("Scheduler: dispatch pending failed: %v", err)
	}
	released := s.releaseDueJobs(ctx)

	if matched > 0 || dispatched > 0 || released > 0 {
		log.Printf("Scheduler sweep: checked=%d, matched=%d, dispatched=%d, released=%d",
			checked, matched, dispatched, released)
	}
}

// sweepSignals 对全部主体求值信号
func (s *Scheduler) sweepSignals(ctx context.Context) (int, int) {
	subjects, err := s.subjects.ListAll(0)
	if err != nil {
		log.Printf("Scheduler: failed to list subjects: %v", err)
		return 0, 0
	}

	matched := 0
	for _, subject := range subjects {
		hit, err := s.CheckTriggers(ctx, subject.ID)
		if err != nil {
			log.Printf("Scheduler: subject %d: check failed: %v", subject.ID, err)
			continue
		}
		if hit {
			matched++
		}
	}
	return len(subjects), matched
}

// releaseDueJobs 把退避期满的任务重新推回各队列（进程重启后的兜底）
func (s *Scheduler) releaseDueJobs(ctx context.Context) int {
	total := 0
	for _, name := range []string{model.QueueAnalysis, model.QueueBonus, model.QueuePublishing, model.QueueNotification} {
		n, err := s.queue.ReleaseDue(ctx, name, dispatchBatchSize)
		if err != nil {
			log.Printf("Scheduler: release due on %s failed: %v", name, err)
			continue
		}
		total += n
	}
	return total
}
