package repository

import (
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(rule *model.TriggerRule) error {
	return r.db.Create(rule).Error
}

func (r *RuleRepository) GetByID(id int64) (*model.TriggerRule, error) {
	var rule model.TriggerRule
	err := r.db.Where("id = ?", id).First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) Update(rule *model.TriggerRule) error {
	return r.db.Save(rule).Error
}

func (r *RuleRepository) SetActive(id int64, active bool) error {
	return r.db.Model(&model.TriggerRule{}).Where("id = ?", id).Update("is_active", active).Error
}

// ListActiveForTenant 返回租户可见的启用规则：租户规则 ∪ 全局规则，
// 按优先级降序、ID 升序，保证评估顺序确定
func (r *RuleRepository) ListActiveForTenant(tenantID int64) ([]*model.TriggerRule, error) {
	var rules []*model.TriggerRule
	err := r.db.Where("is_active = ? AND (tenant_id = ? OR tenant_id = 0)", true, tenantID).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *RuleRepository) ListByTenant(tenantID int64, page, pageSize int) ([]*model.TriggerRule, int64, error) {
	query := r.db.Model(&model.TriggerRule{}).Where("tenant_id = ? OR tenant_id = 0", tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rules []*model.TriggerRule
	err := query.Order("priority DESC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rules).Error
	return rules, total, err
}
