package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(run *model.AnalysisRun) error {
	return r.db.Create(run).Error
}

func (r *RunRepository) GetByID(id int64) (*model.AnalysisRun, error) {
	var run model.AnalysisRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetActiveByIdempotencyKey 查找同租户下仍未终态的幂等运行
func (r *RunRepository) GetActiveByIdempotencyKey(tenantID int64, key string) (*model.AnalysisRun, error) {
	var run model.AnalysisRun
	err := r.db.Where("tenant_id = ? AND idempotency_key = ? AND status IN ?",
		tenantID, key, []string{model.RunStatusPending, model.RunStatusRunning}).
		Order("created_at DESC").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Transition 带状态守卫的整行回写：仅当行的当前状态仍为 from 时生效，
// 返回是否完成迁移。已到终态的行不会被并发的收尾写入改回其他状态。
func (r *RunRepository) Transition(run *model.AnalysisRun, from string) (bool, error) {
	result := r.db.Model(&model.AnalysisRun{}).
		Where("id = ? AND status = ?", run.ID, from).
		Updates(map[string]interface{}{
			"status":          run.Status,
			"progress":        run.Progress,
			"domain_statuses": run.DomainStatuses,
			"raw_results":     run.RawResults,
			"failure_reason":  run.FailureReason,
			"started_at":      run.StartedAt,
			"completed_at":    run.CompletedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CancelActive 把仍在 pending/running 的运行置为已取消终态，
// 返回是否取消成功。已终态的运行不受影响。
func (r *RunRepository) CancelActive(id int64) (bool, error) {
	now := time.Now()
	result := r.db.Model(&model.AnalysisRun{}).
		Where("id = ? AND status IN ?", id,
			[]string{model.RunStatusPending, model.RunStatusRunning}).
		Updates(map[string]interface{}{
			"status":         model.RunStatusFailed,
			"failure_reason": model.RunReasonCancelled,
			"completed_at":   &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateProgress 按域完成边界更新进度
func (r *RunRepository) UpdateProgress(id int64, progress int) error {
	return r.db.Model(&model.AnalysisRun{}).Where("id = ?", id).Update("progress", progress).Error
}

// MarkFailed 标记运行失败并记录原因
func (r *RunRepository) MarkFailed(id int64, reason string) error {
	now := time.Now()
	return r.db.Model(&model.AnalysisRun{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         model.RunStatusFailed,
		"failure_reason": reason,
		"completed_at":   &now,
	}).Error
}

func (r *RunRepository) ListByTenant(tenantID int64, page, pageSize int, status string) ([]*model.AnalysisRun, int64, error) {
	query := r.db.Model(&model.AnalysisRun{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []*model.AnalysisRun
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&runs).Error
	return runs, total, err
}
