package model

import (
	"time"
)

// 队列任务状态
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// 命名队列
const (
	QueueAnalysis     = "analysis"
	QueueBonus        = "bonus"
	QueuePublishing   = "publishing"
	QueueNotification = "notification"
)

// QueueJob 一个持久化的异步工作单元，被认领后仅由认领的 worker 修改
type QueueJob struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	QueueName   string     `gorm:"size:50;not null;index" json:"queue_name"`
	TenantID    int64      `gorm:"index" json:"tenant_id"`
	DispatchKey string     `gorm:"size:200;index" json:"dispatch_key,omitempty"` // subject + action type，入队时去重
	Payload     JSONMap    `gorm:"type:json" json:"payload"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	MaxAttempts int        `gorm:"default:3" json:"max_attempts"`
	Backoff     string     `gorm:"size:20;default:exponential" json:"backoff"` // fixed | exponential
	BackoffBase int        `gorm:"default:2" json:"backoff_base"`              // 秒
	TimeoutSec  int        `gorm:"default:600" json:"timeout_sec"`             // 整体时钟预算
	Status      string     `gorm:"size:20;default:pending;index" json:"status"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	Result      JSONMap    `gorm:"type:json" json:"result,omitempty"`
	AvailableAt time.Time  `gorm:"index" json:"available_at"` // 退避后可再次认领的时间
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (QueueJob) TableName() string {
	return "queue_jobs"
}

// Terminal 任务是否已到终态
func (j *QueueJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
