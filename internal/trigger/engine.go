package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

// Engine 对快照评估触发规则并把命中的动作投递到队列。
// 引擎只入队，从不直接调用动作处理器。
type Engine struct {
	rules *repository.RuleRepository
	execs *repository.ExecutionRepository
	queue *queue.Queue
	cfg   *config.Config
}

func NewEngine(
	rules *repository.RuleRepository,
	execs *repository.ExecutionRepository,
	q *queue.Queue,
	cfg *config.Config,
) *Engine {
	return &Engine{rules: rules, execs: execs, queue: q, cfg: cfg}
}

// Evaluate 按优先级降序、ID 升序评估租户可见的全部启用规则。
// 规则彼此独立：单条规则的求值错误或抑制不影响其他规则；
// 只有显式声明 exclusive 的规则命中后才停止后续评估。
func (e *Engine) Evaluate(ctx context.Context, snap *model.OrganizationalSnapshot) ([]*model.TriggerExecution, error) {
	rules, err := e.rules.ListActiveForTenant(snap.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	fields := snapshotFields(snap)
	var fired []*model.TriggerExecution

	for _, rule := range rules {
		matched, err := evalCondition(rule, fields)
		if err != nil {
			// 坏字段路径或坏比较符只影响本条规则
			log.Printf("Rule %d: condition error, skipped: %v", rule.ID, err)
			continue
		}
		if !matched {
			continue
		}

		exec, err := e.dispatch(ctx, rule, snap)
		if err != nil {
			log.Printf("Rule %d: dispatch failed: %v", rule.ID, err)
			continue
		}
		if exec != nil {
			fired = append(fired, exec)
		}

		if rule.Exclusive {
			break
		}
	}

	return fired, nil
}

// dispatch 创建触发执行并投递队列任务。
// 同一规则上一次执行未决时重复命中被抑制，返回 (nil, nil)。
func (e *Engine) dispatch(ctx context.Context, rule *model.TriggerRule, snap *model.OrganizationalSnapshot) (*model.TriggerExecution, error) {
	pending, err := e.execs.HasPendingForRule(rule.ID, snap.TenantID)
	if err != nil {
		return nil, err
	}
	if pending {
		log.Printf("Rule %d: previous execution unresolved for tenant %d, suppressed", rule.ID, snap.TenantID)
		return nil, nil
	}

	exec := &model.TriggerExecution{
		RuleID:     rule.ID,
		TenantID:   snap.TenantID,
		SnapshotID: snap.ID,
		ActionType: rule.ActionType,
		Outcome:    model.ExecutionOutcomePending,
		FiredAt:    time.Now(),
	}
	if err := e.execs.Create(exec); err != nil {
		return nil, err
	}

	queueName := e.queueForAction(rule.ActionType)
	payload := model.JSONMap{
		"execution_id":  exec.ID,
		"rule_id":       rule.ID,
		"tenant_id":     snap.TenantID,
		"snapshot_id":   snap.ID,
		"action_type":   rule.ActionType,
		"action_config": map[string]interface{}(rule.ActionConfig),
	}
	dispatchKey := fmt.Sprintf("tenant:%d:rule:%d:%s", snap.TenantID, rule.ID, rule.ActionType)

	job, err := e.queue.Enqueue(ctx, queueName, snap.TenantID, payload, dispatchKey,
		queue.PolicyFromConfig(e.cfg.QueueFor(queueName)))
	if err != nil {
		if errors.Is(err, queue.ErrDispatchConflict) {
			// 入队侧的调度键兜底命中，记为幂等跳过
			_ = e.execs.MarkOutcome(exec.ID, model.ExecutionOutcomeSkipped, "dispatch key conflict")
			return nil, nil
		}
		return nil, err
	}

	exec.DispatchedJobID = job.ID
	if err := e.execs.Update(exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// DispatchRule 绕过条件求值直接投递一条规则，供手动触发使用。
// 抑制与调度键约束与常规评估一致，被抑制时返回 (nil, nil)。
func (e *Engine) DispatchRule(ctx context.Context, ruleID int64, snap *model.OrganizationalSnapshot) (*model.TriggerExecution, error) {
	rule, err := e.rules.GetByID(ruleID)
	if err != nil {
		return nil, err
	}
	return e.dispatch(ctx, rule, snap)
}

// queueForAction 动作类型到队列名的映射，未配置的动作走通知队列
func (e *Engine) queueForAction(actionType string) string {
	if name, ok := e.cfg.Trigger.ActionQueues[actionType]; ok {
		return name
	}
	return model.QueueNotification
}
