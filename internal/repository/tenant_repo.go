package repository

import (
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(tenant *model.Tenant) error {
	return r.db.Create(tenant).Error
}

func (r *TenantRepository) GetByID(id int64) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

type SubjectRepository struct {
	db *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) Create(subject *model.Subject) error {
	return r.db.Create(subject).Error
}

func (r *SubjectRepository) GetByID(id int64) (*model.Subject, error) {
	var subject model.Subject
	err := r.db.Where("id = ?", id).First(&subject).Error
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

func (r *SubjectRepository) Update(subject *model.Subject) error {
	return r.db.Save(subject).Error
}

// ListByTenant 租户下所有主体
func (r *SubjectRepository) ListByTenant(tenantID int64) ([]*model.Subject, error) {
	var subjects []*model.Subject
	err := r.db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&subjects).Error
	return subjects, err
}

// ListAll 全部主体，调度器周期扫描用。limit <= 0 表示不限制。
func (r *SubjectRepository) ListAll(limit int) ([]*model.Subject, error) {
	var subjects []*model.Subject
	query := r.db.Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&subjects).Error
	return subjects, err
}

// MarkAnalyzed 分析完成后回写信号基线
func (r *SubjectRepository) MarkAnalyzed(subject *model.Subject) error {
	return r.db.Model(&model.Subject{}).Where("id = ?", subject.ID).Updates(map[string]interface{}{
		"last_analyzed_at":          subject.LastAnalyzedAt,
		"analyzed_strategy_version": subject.StrategyVersion,
		"analyzed_learning_count":   subject.CompletedLearningCount,
	}).Error
}
