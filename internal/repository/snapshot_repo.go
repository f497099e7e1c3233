package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Create(snap *model.OrganizationalSnapshot) error {
	return r.db.Create(snap).Error
}

func (r *SnapshotRepository) GetByID(id int64) (*model.OrganizationalSnapshot, error) {
	var snap model.OrganizationalSnapshot
	err := r.db.Where("id = ?", id).First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *SnapshotRepository) GetBySourceRunID(runID int64) (*model.OrganizationalSnapshot, error) {
	var snap model.OrganizationalSnapshot
	err := r.db.Where("source_run_id = ?", runID).First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetLatest 返回租户最新快照，没有时返回 nil 而非错误
func (r *SnapshotRepository) GetLatest(tenantID int64) (*model.OrganizationalSnapshot, error) {
	var snap model.OrganizationalSnapshot
	err := r.db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (r *SnapshotRepository) ListByTenant(tenantID int64, page, pageSize int) ([]*model.OrganizationalSnapshot, int64, error) {
	query := r.db.Model(&model.OrganizationalSnapshot{}).Where("tenant_id = ?", tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var snaps []*model.OrganizationalSnapshot
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&snaps).Error
	return snaps, total, err
}

// UpdateArchiveURL 记录快照归档地址，快照本体不可变
func (r *SnapshotRepository) UpdateArchiveURL(id int64, url string) error {
	return r.db.Model(&model.OrganizationalSnapshot{}).Where("id = ?", id).Update("archive_url", url).Error
}
