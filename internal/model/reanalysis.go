package model

import (
	"time"
)

// 重分析请求状态
const (
	ReAnalysisStatusPending   = "pending"
	ReAnalysisStatusDispatched = "dispatched"
	ReAnalysisStatusCompleted = "completed"
)

// ReAnalysisRequest 待处理的重分析请求，每个主体至多一条 pending
type ReAnalysisRequest struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	SubjectID   int64     `gorm:"not null;index" json:"subject_id"`
	TenantID    int64     `gorm:"not null;index" json:"tenant_id"`
	Reason      string    `gorm:"size:200;not null" json:"reason"`
	Status      string    `gorm:"size:20;default:pending;index" json:"status"`
	TriggeredBy string    `gorm:"size:50" json:"triggered_by"` // scheduler, manual
	RunID       int64     `gorm:"index" json:"run_id,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ReAnalysisRequest) TableName() string {
	return "reanalysis_requests"
}
