package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

var (
	ErrRuleNotFound = errors.New("触发规则不存在")
	ErrInvalidRule  = errors.New("规则定义无效")
)

var validComparators = map[string]struct{}{
	model.ComparatorLT:  {},
	model.ComparatorLTE: {},
	model.ComparatorGT:  {},
	model.ComparatorGTE: {},
	model.ComparatorEQ:  {},
	model.ComparatorNEQ: {},
}

type RuleService struct {
	rules *repository.RuleRepository
	execs *repository.ExecutionRepository
}

func NewRuleService(rules *repository.RuleRepository, execs *repository.ExecutionRepository) *RuleService {
	return &RuleService{rules: rules, execs: execs}
}

// Create 创建租户规则
func (s *RuleService) Create(tenantID int64, req *dto.CreateRuleRequest) (*model.TriggerRule, error) {
	if err := validateComparator(req.Comparator); err != nil {
		return nil, err
	}
	if req.Field == "" {
		return nil, fmt.Errorf("%w: 缺少条件字段", ErrInvalidRule)
	}

	rule := &model.TriggerRule{
		TenantID:     tenantID,
		Name:         req.Name,
		Field:        req.Field,
		Comparator:   req.Comparator,
		Threshold:    req.Threshold,
		ActionType:   req.ActionType,
		ActionConfig: model.JSONMap(req.ActionConfig),
		Priority:     req.Priority,
		Exclusive:    req.Exclusive,
		IsActive:     true,
	}
	if err := s.rules.Create(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Update 更新规则，nil 字段保持不变
func (s *RuleService) Update(tenantID, ruleID int64, req *dto.UpdateRuleRequest) (*model.TriggerRule, error) {
	rule, err := s.getScoped(tenantID, ruleID)
	if err != nil {
		return nil, err
	}

	if req.Comparator != nil {
		if err := validateComparator(*req.Comparator); err != nil {
			return nil, err
		}
		rule.Comparator = *req.Comparator
	}
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Field != nil {
		if *req.Field == "" {
			return nil, fmt.Errorf("%w: 缺少条件字段", ErrInvalidRule)
		}
		rule.Field = *req.Field
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.ActionType != nil {
		rule.ActionType = *req.ActionType
	}
	if req.ActionConfig != nil {
		rule.ActionConfig = model.JSONMap(req.ActionConfig)
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Exclusive != nil {
		rule.Exclusive = *req.Exclusive
	}

	if err := s.rules.Update(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// SetActive 启用/停用规则
func (s *RuleService) SetActive(tenantID, ruleID int64, active bool) error {
	if _, err := s.getScoped(tenantID, ruleID); err != nil {
		return err
	}
	return s.rules.SetActive(ruleID, active)
}

// List 租户自有规则列表（不含全局规则）
func (s *RuleService) List(tenantID int64, page, pageSize int) ([]*dto.RuleListItem, int64, error) {
	rules, total, err := s.rules.ListByTenant(tenantID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.RuleListItem, 0, len(rules))
	for _, rule := range rules {
		items = append(items, &dto.RuleListItem{
			ID:         rule.ID,
			Name:       rule.Name,
			Field:      rule.Field,
			Comparator: rule.Comparator,
			Threshold:  rule.Threshold,
			ActionType: rule.ActionType,
			Priority:   rule.Priority,
			IsActive:   rule.IsActive,
			Global:     rule.TenantID == 0,
			CreatedAt:  rule.CreatedAt,
		})
	}
	return items, total, nil
}

// Executions 触发执行历史
func (s *RuleService) Executions(tenantID int64, page, pageSize int, outcome string) ([]*dto.ExecutionListItem, int64, error) {
	execs, total, err := s.execs.ListByTenant(tenantID, page, pageSize, outcome)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.ExecutionListItem, 0, len(execs))
	for _, exec := range execs {
		items = append(items, &dto.ExecutionListItem{
			ID:              exec.ID,
			RuleID:          exec.RuleID,
			SnapshotID:      exec.SnapshotID,
			ActionType:      exec.ActionType,
			Outcome:         exec.Outcome,
			OutcomeDetail:   exec.OutcomeDetail,
			DispatchedJobID: exec.DispatchedJobID,
			FiredAt:         exec.FiredAt,
			ResolvedAt:      exec.ResolvedAt,
		})
	}
	return items, total, nil
}

func (s *RuleService) getScoped(tenantID, ruleID int64) (*model.TriggerRule, error) {
	rule, err := s.rules.GetByID(ruleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	// 全局规则只读
	if rule.TenantID != tenantID {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}

func validateComparator(comparator string) error {
	if _, ok := validComparators[comparator]; !ok {
		return fmt.Errorf("%w: 未知比较符 %q", ErrInvalidRule, comparator)
	}
	return nil
}
