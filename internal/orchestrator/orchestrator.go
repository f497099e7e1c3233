package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orgpulse/orgpulse_server/internal/agent"
	"github.com/orgpulse/orgpulse_server/internal/consensus"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/pkg/pubsub"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

// ErrRunCancelled 运行被调用方取消
var ErrRunCancelled = errors.New("运行已取消")

// Orchestrator 对一个租户的一次运行调度全部域代理。
// 运行行由编排器独占写入，其他组件只读。
type Orchestrator struct {
	runs      *repository.RunRepository
	tenants   *repository.TenantRepository
	subjects  *repository.SubjectRepository
	agents    agent.Registry
	publisher *pubsub.Publisher

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

func New(
	runs *repository.RunRepository,
	tenants *repository.TenantRepository,
	subjects *repository.SubjectRepository,
	agents agent.Registry,
	publisher *pubsub.Publisher,
) *Orchestrator {
	return &Orchestrator{
		runs:      runs,
		tenants:   tenants,
		subjects:  subjects,
		agents:    agents,
		publisher: publisher,
		cancels:   make(map[int64]context.CancelFunc),
	}
}

type domainOutcome struct {
	domain string
	status string
	raw    interface{}
}

// Execute 执行一次已创建的运行：并发调用各域代理，逐域记录进度。
// 单个域失败不中止其他域，部分完成是合法的可报告状态。
func (o *Orchestrator) Execute(ctx context.Context, runID int64) error {
	run, err := o.runs.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run.Terminal() {
		// at-least-once 投递下的重复执行，直接跳过
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.register(runID, cancel)
	defer o.unregister(runID)

	threshold := 0.0
	if tenant, err := o.tenants.GetByID(run.TenantID); err == nil && tenant.ConsensusThreshold > 0 {
		threshold = tenant.ConsensusThreshold
	}

	attrs := o.collectAttributes(run)

	// prev 正常为 pending；worker 崩溃后重投时可能已是 running
	prev := run.Status
	now := time.Now()
	run.Status = model.RunStatusRunning
	run.StartedAt = &now
	moved, err := o.runs.Transition(run, prev)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	if !moved {
		// 加载后被并发取消，终态行不再执行
		return nil
	}
	o.publish(runCtx, run, "", "")

	domains := []string(run.RequestedDomains)
	outcomes := make(chan domainOutcome, len(domains))
	var wg sync.WaitGroup
	for _, domain := range domains {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			outcomes <- o.runDomain(runCtx, domain, agent.RunInput{
				TenantID:   run.TenantID,
				Threshold:  threshold,
				Attributes: attrs,
			})
		}(domain)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	statuses := model.StringMap{}
	raws := model.JSONMap{}
	done := 0
	for outcome := range outcomes {
		done++
		statuses[outcome.domain] = outcome.status
		if outcome.raw != nil {
			raws[outcome.domain] = outcome.raw
		}

		// 进度仅在域完成边界更新
		progress := done * 100 / len(domains)
		if err := o.runs.UpdateProgress(runID, progress); err != nil {
			log.Printf("Run %d: failed to update progress: %v", runID, err)
		}
		run.Progress = progress
		o.publish(runCtx, run, outcome.domain, outcome.status)
	}

	run.DomainStatuses = statuses
	run.RawResults = raws

	if runCtx.Err() != nil {
		run.Status = model.RunStatusFailed
		run.FailureReason = model.RunReasonCancelled
		completed := time.Now()
		run.CompletedAt = &completed
		// 跨进程取消时 API 侧可能已写入终态行，守卫更新落空是正常的
		if _, err := o.runs.Transition(run, model.RunStatusRunning); err != nil {
			return fmt.Errorf("failed to mark run cancelled: %w", err)
		}
		o.publish(context.Background(), run, "", "")
		return ErrRunCancelled
	}

	// 至少一个域达成共识即算完成，部分成功按域上报
	succeeded := 0
	for _, status := range statuses {
		if status == model.DomainStatusOK {
			succeeded++
		}
	}
	completed := time.Now()
	run.CompletedAt = &completed
	run.Progress = 100
	if succeeded > 0 {
		run.Status = model.RunStatusCompleted
	} else {
		run.Status = model.RunStatusFailed
		run.FailureReason = "no domain reached consensus"
	}

	moved, err = o.runs.Transition(run, model.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	if !moved {
		// 执行期间被别的进程取消，终态以取消方写入的为准，不出快照不触发规则
		return ErrRunCancelled
	}
	o.publish(runCtx, run, "", "")

	o.markSubjectAnalyzed(run)

	log.Printf("Run %d: finished status=%s domains=%d ok=%d", runID, run.Status, len(domains), succeeded)
	return nil
}

// runDomain 调用一个域代理并把错误归类为域状态
func (o *Orchestrator) runDomain(ctx context.Context, domain string, in agent.RunInput) domainOutcome {
	a, ok := o.agents[domain]
	if !ok {
		return domainOutcome{domain: domain, status: model.DomainStatusUnavailable,
			raw: map[string]interface{}{"error": "unknown domain"}}
	}

	result, err := a.Run(ctx, in)
	if err != nil {
		var lowConf *consensus.LowConfidenceError
		if errors.As(err, &lowConf) {
			return domainOutcome{domain: domain, status: model.DomainStatusLowConfidence, raw: map[string]interface{}{
				"consensus_score": lowConf.Score,
				"threshold":       lowConf.Threshold,
				"responses":       lowConf.Responses,
			}}
		}
		return domainOutcome{domain: domain, status: model.DomainStatusUnavailable,
			raw: map[string]interface{}{"error": err.Error()}}
	}

	return domainOutcome{domain: domain, status: model.DomainStatusOK, raw: map[string]interface{}{
		"score":           result.Response.Score,
		"category":        result.Response.Category,
		"summary":         result.Response.Summary,
		"merged_score":    result.MergedScore,
		"consensus_score": result.ConsensusScore,
		"provider":        result.Response.Provider,
		"responses":       result.Responses,
	}}
}

// Cancel 取消一个进行中的运行，向在途的提供商调用传播取消
func (o *Orchestrator) Cancel(runID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[runID]; ok {
		cancel()
		return true
	}
	return false
}

func (o *Orchestrator) register(runID int64, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[runID] = cancel
}

func (o *Orchestrator) unregister(runID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, runID)
}

// collectAttributes 合并主体画像与本次运行附带的属性
func (o *Orchestrator) collectAttributes(run *model.AnalysisRun) map[string]interface{} {
	attrs := map[string]interface{}{}
	if run.SubjectID != 0 {
		if subject, err := o.subjects.GetByID(run.SubjectID); err == nil {
			for k, v := range subject.Attributes {
				attrs[k] = v
			}
		}
	}
	for k, v := range run.Attributes {
		attrs[k] = v
	}
	return attrs
}

// markSubjectAnalyzed 完成后回写主体的信号基线
func (o *Orchestrator) markSubjectAnalyzed(run *model.AnalysisRun) {
	if run.SubjectID == 0 || run.Status != model.RunStatusCompleted {
		return
	}
	subject, err := o.subjects.GetByID(run.SubjectID)
	if err != nil {
		return
	}
	subject.LastAnalyzedAt = run.CompletedAt
	if err := o.subjects.MarkAnalyzed(subject); err != nil {
		log.Printf("Run %d: failed to update subject baseline: %v", run.ID, err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, run *model.AnalysisRun, domain, domainStatus string) {
	if o.publisher == nil {
		return
	}
	_ = o.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		TenantID:     run.TenantID,
		RunID:        run.ID,
		Status:       run.Status,
		Progress:     run.Progress,
		Domain:       domain,
		DomainStatus: domainStatus,
		Error:        run.FailureReason,
	})
}
