package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(exec *model.TriggerExecution) error {
	return r.db.Create(exec).Error
}

func (r *ExecutionRepository) GetByID(id int64) (*model.TriggerExecution, error) {
	var exec model.TriggerExecution
	err := r.db.Where("id = ?", id).First(&exec).Error
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (r *ExecutionRepository) Update(exec *model.TriggerExecution) error {
	return r.db.Save(exec).Error
}

// MarkOutcome 记录任务终态，回写到触发执行
func (r *ExecutionRepository) MarkOutcome(id int64, outcome, detail string) error {
	now := time.Now()
	return r.db.Model(&model.TriggerExecution{}).Where("id = ?", id).Updates(map[string]interface{}{
		"outcome":        outcome,
		"outcome_detail": detail,
		"resolved_at":    &now,
	}).Error
}

// HasPendingForRule 某规则在该租户是否有未决执行（重复触发抑制）
func (r *ExecutionRepository) HasPendingForRule(ruleID, tenantID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.TriggerExecution{}).
		Where("rule_id = ? AND tenant_id = ? AND outcome = ?", ruleID, tenantID, model.ExecutionOutcomePending).
		Count(&count).Error
	return count > 0, err
}

func (r *ExecutionRepository) ListByTenant(tenantID int64, page, pageSize int, outcome string) ([]*model.TriggerExecution, int64, error) {
	query := r.db.Model(&model.TriggerExecution{}).Where("tenant_id = ?", tenantID)
	if outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var execs []*model.TriggerExecution
	err := query.Order("fired_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&execs).Error
	return execs, total, err
}
