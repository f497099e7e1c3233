package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.QueueJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id int64) (*model.QueueJob, error) {
	var job model.QueueJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Update(job *model.QueueJob) error {
	return r.db.Save(job).Error
}

// HasActiveByDispatchKey 同一调度键是否已有非终态任务（入队去重检查）
func (r *JobRepository) HasActiveByDispatchKey(key string) (bool, error) {
	var count int64
	err := r.db.Model(&model.QueueJob{}).
		Where("dispatch_key = ? AND status IN ?", key,
			[]string{model.JobStatusPending, model.JobStatusProcessing}).
		Count(&count).Error
	return count > 0, err
}

// TryClaim 以 pending→processing 的条件更新认领任务。
// RowsAffected 为 0 表示已被其他 worker 认领或尚未到可用时间。
func (r *JobRepository) TryClaim(id int64, now time.Time) (bool, error) {
	res := r.db.Model(&model.QueueJob{}).
		Where("id = ? AND status = ? AND available_at <= ?", id, model.JobStatusPending, now).
		Updates(map[string]interface{}{
			"status":     model.JobStatusProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted 任务成功结束
func (r *JobRepository) MarkCompleted(id int64, result model.JSONMap) error {
	now := time.Now()
	return r.db.Model(&model.QueueJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.JobStatusCompleted,
		"result":       result,
		"last_error":   "",
		"completed_at": &now,
	}).Error
}

// MarkFailed 任务永久失败
func (r *JobRepository) MarkFailed(id int64, lastError string) error {
	now := time.Now()
	return r.db.Model(&model.QueueJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.JobStatusFailed,
		"last_error":   lastError,
		"completed_at": &now,
	}).Error
}

// Requeue 失败后重新置为 pending，退避到 availableAt 才可再次认领
func (r *JobRepository) Requeue(id int64, lastError string, availableAt time.Time) error {
	return r.db.Model(&model.QueueJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.JobStatusPending,
		"last_error":   lastError,
		"available_at": availableAt,
	}).Error
}

// ListDue 返回某队列退避期已过、等待重新投递的任务 ID
func (r *JobRepository) ListDue(queueName string, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&model.QueueJob{}).
		Where("queue_name = ? AND status = ? AND available_at <= ?", queueName, model.JobStatusPending, now).
		Order("available_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// CountByStatus 某队列给定状态的任务数
func (r *JobRepository) CountByStatus(queueName, status string) (int64, error) {
	var count int64
	err := r.db.Model(&model.QueueJob{}).
		Where("queue_name = ? AND status = ?", queueName, status).
		Count(&count).Error
	return count, err
}
