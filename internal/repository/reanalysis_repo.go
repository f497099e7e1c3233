package repository

import (
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

type ReAnalysisRepository struct {
	db *gorm.DB
}

func NewReAnalysisRepository(db *gorm.DB) *ReAnalysisRepository {
	return &ReAnalysisRepository{db: db}
}

func (r *ReAnalysisRepository) Create(req *model.ReAnalysisRequest) error {
	return r.db.Create(req).Error
}

func (r *ReAnalysisRepository) GetByID(id int64) (*model.ReAnalysisRequest, error) {
	var req model.ReAnalysisRequest
	err := r.db.Where("id = ?", id).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// HasPendingForSubject 主体是否已有 pending 请求（每主体至多一条）
func (r *ReAnalysisRepository) HasPendingForSubject(subjectID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.ReAnalysisRequest{}).
		Where("subject_id = ? AND status = ?", subjectID, model.ReAnalysisStatusPending).
		Count(&count).Error
	return count > 0, err
}

// GetPendingForSubject 主体当前的 pending 请求
func (r *ReAnalysisRepository) GetPendingForSubject(subjectID int64) (*model.ReAnalysisRequest, error) {
	var req model.ReAnalysisRequest
	err := r.db.Where("subject_id = ? AND status = ?", subjectID, model.ReAnalysisStatusPending).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// MarkDispatched 请求已转为分析任务
func (r *ReAnalysisRepository) MarkDispatched(id, runID int64) error {
	return r.db.Model(&model.ReAnalysisRequest{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status": model.ReAnalysisStatusDispatched,
		"run_id": runID,
	}).Error
}

func (r *ReAnalysisRepository) MarkCompleted(id int64) error {
	return r.db.Model(&model.ReAnalysisRequest{}).Where("id = ?", id).
		Update("status", model.ReAnalysisStatusCompleted).Error
}

// MarkCompletedByRunID 关联运行结束后收尾对应的请求
func (r *ReAnalysisRepository) MarkCompletedByRunID(runID int64) error {
	return r.db.Model(&model.ReAnalysisRequest{}).
		Where("run_id = ? AND status = ?", runID, model.ReAnalysisStatusDispatched).
		Update("status", model.ReAnalysisStatusCompleted).Error
}

// ListPending 待调度的请求，按创建时间先后
func (r *ReAnalysisRepository) ListPending(limit int) ([]*model.ReAnalysisRequest, error) {
	var reqs []*model.ReAnalysisRequest
	err := r.db.Where("status = ?", model.ReAnalysisStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}
