package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/orchestrator"
	"github.com/orgpulse/orgpulse_server/internal/pkg/archive"
	"github.com/orgpulse/orgpulse_server/internal/pkg/email"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/snapshot"
	"github.com/orgpulse/orgpulse_server/internal/trigger"
)

// Handlers 各队列的任务处理器集合
type Handlers struct {
	runs      *repository.RunRepository
	snapshots *repository.SnapshotRepository
	execs     *repository.ExecutionRepository
	rules     *repository.RuleRepository
	requests  *repository.ReAnalysisRepository
	orch      *orchestrator.Orchestrator
	engine    *trigger.Engine
	store     archive.Store  // 可选，nil 时跳过归档
	mailer    *email.Service // 可选，nil 时通知降级为日志
}

func NewHandlers(
	runs *repository.RunRepository,
	snapshots *repository.SnapshotRepository,
	execs *repository.ExecutionRepository,
	rules *repository.RuleRepository,
	requests *repository.ReAnalysisRepository,
	orch *orchestrator.Orchestrator,
	engine *trigger.Engine,
	store archive.Store,
	mailer *email.Service,
) *Handlers {
	return &Handlers{
		runs:      runs,
		snapshots: snapshots,
		execs:     execs,
		rules:     rules,
		requests:  requests,
		orch:      orch,
		engine:    engine,
		store:     store,
		mailer:    mailer,
	}
}

// RegisterAll 把处理器挂到各自的队列上
func (h *Handlers) RegisterAll(pool *Pool) {
	pool.Register(model.QueueAnalysis, h.HandleAnalysis)
	pool.Register(model.QueueBonus, h.HandleBonus)
	pool.Register(model.QueuePublishing, h.HandlePublishing)
	pool.Register(model.QueueNotification, h.HandleNotification)
	pool.OnPermanentFailure(h.HandlePermanentFailure)
}

// HandleAnalysis 执行分析运行，完成后构建快照并评估触发规则
func (h *Handlers) HandleAnalysis(ctx context.Context, job *model.QueueJob) (model.JSONMap, error) {
	runID, ok := payloadInt64(job.Payload, "run_id")
	if !ok {
		return nil, Terminal(errors.New("payload missing run_id"))
	}

	run, err := h.runs.GetByID(runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Terminal(fmt.Errorf("run %d not found", runID))
		}
		return nil, err
	}

	// 重复投递：运行已有快照说明本任务早已完整处理过
	if run.Terminal() {
		if existing, err := h.snapshots.GetBySourceRunID(runID); err == nil {
			h.closeRequest(runID)
			return model.JSONMap{"run_status": run.Status, "snapshot_id": existing.ID, "skipped": true}, nil
		}
	}

	if err := h.orch.Execute(ctx, runID); err != nil {
		if errors.Is(err, orchestrator.ErrRunCancelled) {
			// 取消是合法终态，任务不算失败
			h.closeRequest(runID)
			return model.JSONMap{"run_status": model.RunStatusFailed, "reason": model.RunReasonCancelled}, nil
		}
		return nil, err
	}

	run, err = h.runs.GetByID(runID)
	if err != nil {
		return nil, err
	}

	result := model.JSONMap{"run_status": run.Status}

	if run.Status == model.RunStatusCompleted {
		snapID, err := h.buildSnapshot(ctx, run)
		if err != nil {
			return nil, err
		}
		result["snapshot_id"] = snapID
	}

	h.closeRequest(runID)
	return result, nil
}

// buildSnapshot 构建快照、归档并触发规则评估
func (h *Handlers) buildSnapshot(ctx context.Context, run *model.AnalysisRun) (int64, error) {
	prior, err := h.snapshots.GetLatest(run.TenantID)
	if err != nil {
		return 0, err
	}

	snap, err := snapshot.Build(run, prior)
	if err != nil {
		return 0, Terminal(fmt.Errorf("snapshot build failed: %w", err))
	}
	if err := h.snapshots.Create(snap); err != nil {
		return 0, err
	}

	// 归档失败不阻塞主流程
	if h.store != nil {
		if data, err := json.Marshal(snap); err == nil {
			url, err := h.store.UploadSnapshot(snap.TenantID, snap.ID, data)
			if err != nil {
				log.Printf("Run %d: snapshot archive failed: %v", run.ID, err)
			} else if err := h.snapshots.UpdateArchiveURL(snap.ID, url); err != nil {
				log.Printf("Run %d: failed to record archive url: %v", run.ID, err)
			}
		}
	}

	fired, err := h.engine.Evaluate(ctx, snap)
	if err != nil {
		log.Printf("Run %d: trigger evaluation failed: %v", run.ID, err)
	} else if len(fired) > 0 {
		log.Printf("Run %d: %d trigger rules fired on snapshot %d", run.ID, len(fired), snap.ID)
	}

	return snap.ID, nil
}

// closeRequest 收尾关联的重分析请求
func (h *Handlers) closeRequest(runID int64) {
	if err := h.requests.MarkCompletedByRunID(runID); err != nil {
		log.Printf("Run %d: failed to close re-analysis request: %v", runID, err)
	}
}

// HandleBonus 奖金计算任务
func (h *Handlers) HandleBonus(ctx context.Context, job *model.QueueJob) (model.JSONMap, error) {
	exec, skip, err := h.claimExecution(job)
	if err != nil || skip != nil {
		return skip, err
	}

	cfg := actionConfig(job.Payload)
	base := 100.0
	if v, ok := cfg["base_amount"].(float64); ok && v > 0 {
		base = v
	}

	// 奖金随总分线性浮动，缺总分按基准发放
	amount := base
	snap, err := h.snapshots.GetByID(exec.SnapshotID)
	if err == nil && snap.OverallScore != nil {
		amount = base * (*snap.OverallScore / 100.0)
	}

	detail := fmt.Sprintf("bonus %.2f calculated", amount)
	if err := h.execs.MarkOutcome(exec.ID, model.ExecutionOutcomeSucceeded, detail); err != nil {
		return nil, err
	}
	return model.JSONMap{"amount": amount}, nil
}

// HandlePublishing 内容发布任务：把快照要点整理为可发布的内容
func (h *Handlers) HandlePublishing(ctx context.Context, job *model.QueueJob) (model.JSONMap, error) {
	exec, skip, err := h.claimExecution(job)
	if err != nil || skip != nil {
		return skip, err
	}

	snap, err := h.snapshots.GetByID(exec.SnapshotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Terminal(fmt.Errorf("snapshot %d not found", exec.SnapshotID))
		}
		return nil, err
	}

	content := model.JSONMap{
		"snapshot_id": snap.ID,
		"highlights":  []string(snap.Highlights),
	}
	if snap.OverallScore != nil {
		content["overall_score"] = *snap.OverallScore
	}

	if err := h.execs.MarkOutcome(exec.ID, model.ExecutionOutcomeSucceeded, "content published"); err != nil {
		return nil, err
	}
	return model.JSONMap{"published": content}, nil
}

// HandleNotification 外发通知任务
func (h *Handlers) HandleNotification(ctx context.Context, job *model.QueueJob) (model.JSONMap, error) {
	exec, skip, err := h.claimExecution(job)
	if err != nil || skip != nil {
		return skip, err
	}

	ruleName := fmt.Sprintf("rule %d", exec.RuleID)
	if rule, err := h.rules.GetByID(exec.RuleID); err == nil {
		ruleName = rule.Name
	}

	cfg := actionConfig(job.Payload)
	recipient, _ := cfg["recipient"].(string)
	detail, _ := cfg["detail"].(string)

	if h.mailer == nil || recipient == "" {
		log.Printf("Execution %d: notification %s (no recipient configured)", exec.ID, ruleName)
	} else if err := h.mailer.SendTriggerAlert(recipient, ruleName, exec.ActionType, detail); err != nil {
		return nil, fmt.Errorf("failed to send alert: %w", err)
	}

	if err := h.execs.MarkOutcome(exec.ID, model.ExecutionOutcomeSucceeded, "notification sent"); err != nil {
		return nil, err
	}
	return model.JSONMap{"recipient": recipient}, nil
}

// HandlePermanentFailure 重试耗尽后把失败回传到发起方
func (h *Handlers) HandlePermanentFailure(ctx context.Context, job *model.QueueJob, jobErr error) {
	if execID, ok := payloadInt64(job.Payload, "execution_id"); ok {
		if err := h.execs.MarkOutcome(execID, model.ExecutionOutcomeFailed, jobErr.Error()); err != nil {
			log.Printf("Execution %d: failed to record job failure: %v", execID, err)
		}
	}

	if runID, ok := payloadInt64(job.Payload, "run_id"); ok {
		run, err := h.runs.GetByID(runID)
		if err == nil && !run.Terminal() {
			if err := h.runs.MarkFailed(runID, "analysis job exhausted retries"); err != nil {
				log.Printf("Run %d: failed to record job failure: %v", runID, err)
			}
		}
		h.closeRequest(runID)
	}
}

// claimExecution 取出任务对应的触发执行。
// 执行已解决时任务按幂等跳过处理，返回跳过结果而非错误。
func (h *Handlers) claimExecution(job *model.QueueJob) (*model.TriggerExecution, model.JSONMap, error) {
	execID, ok := payloadInt64(job.Payload, "execution_id")
	if !ok {
		return nil, nil, Terminal(errors.New("payload missing execution_id"))
	}

	exec, err := h.execs.GetByID(execID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, Terminal(fmt.Errorf("execution %d not found", execID))
		}
		return nil, nil, err
	}

	if exec.Outcome != model.ExecutionOutcomePending {
		log.Printf("Execution %d: already %s, skipping redelivery", exec.ID, exec.Outcome)
		return nil, model.JSONMap{"skipped": true, "outcome": exec.Outcome}, nil
	}
	return exec, nil, nil
}

// actionConfig 取出载荷里的动作配置
func actionConfig(payload model.JSONMap) map[string]interface{} {
	if cfg, ok := payload["action_config"].(map[string]interface{}); ok {
		return cfg
	}
	return map[string]interface{}{}
}

// payloadInt64 兼容 JSON 反序列化后的数值类型
func payloadInt64(payload model.JSONMap, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
