package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/scheduler"
	"github.com/orgpulse/orgpulse_server/internal/trigger"
)

var (
	ErrNoSnapshot       = errors.New("租户还没有组织快照")
	ErrSubjectNotFound  = errors.New("分析主体不存在")
	ErrNothingToTrigger = errors.New("需要指定 rule_id 或 subject_id")
)

// TriggerService 运维手动触发入口：规则重投递或主体重分析
type TriggerService struct {
	snapshots *repository.SnapshotRepository
	subjects  *repository.SubjectRepository
	requests  *repository.ReAnalysisRepository
	engine    *trigger.Engine
	sched     *scheduler.Scheduler
}

func NewTriggerService(
	snapshots *repository.SnapshotRepository,
	subjects *repository.SubjectRepository,
	requests *repository.ReAnalysisRepository,
	engine *trigger.Engine,
	sched *scheduler.Scheduler,
) *TriggerService {
	return &TriggerService{
		snapshots: snapshots,
		subjects:  subjects,
		requests:  requests,
		engine:    engine,
		sched:     sched,
	}
}

// Manual 手动触发。rule_id 在最新快照上强制投递该规则的动作；
// subject_id 登记主体重分析。两者都遵守各自的去重约束。
func (s *TriggerService) Manual(ctx context.Context, tenantID int64, req *dto.ManualTriggerRequest) (*dto.ManualTriggerResponse, error) {
	switch {
	case req.RuleID != 0:
		return s.dispatchRule(ctx, tenantID, req.RuleID)
	case req.SubjectID != 0:
		return s.requestReAnalysis(ctx, tenantID, req.SubjectID, req.Reason)
	default:
		return nil, ErrNothingToTrigger
	}
}

func (s *TriggerService) dispatchRule(ctx context.Context, tenantID, ruleID int64) (*dto.ManualTriggerResponse, error) {
	snap, err := s.snapshots.GetLatest(tenantID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	exec, err := s.engine.DispatchRule(ctx, ruleID, snap)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	if exec == nil {
		return &dto.ManualTriggerResponse{Triggered: false, Detail: "上次触发执行尚未解决，已抑制"}, nil
	}

	return &dto.ManualTriggerResponse{
		Triggered: true,
		Detail:    fmt.Sprintf("规则 %d 已投递到队列", ruleID),
		JobID:     exec.DispatchedJobID,
	}, nil
}

func (s *TriggerService) requestReAnalysis(ctx context.Context, tenantID, subjectID int64, reason string) (*dto.ManualTriggerResponse, error) {
	subject, err := s.subjects.GetByID(subjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}
	if subject.TenantID != tenantID {
		return nil, ErrSubjectNotFound
	}

	created, err := s.sched.Manual(ctx, subjectID, reason)
	if err != nil {
		return nil, err
	}
	if !created {
		return &dto.ManualTriggerResponse{Triggered: false, Detail: "该主体已有待处理的重分析请求"}, nil
	}

	resp := &dto.ManualTriggerResponse{Triggered: true, Detail: "重分析请求已登记"}
	if pending, err := s.requests.GetPendingForSubject(subjectID); err == nil {
		resp.RequestID = pending.ID
	}
	return resp, nil
}
