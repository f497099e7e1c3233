package model

import (
	"time"
)

// 分析运行状态
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// 单个域的完成状态
const (
	DomainStatusOK            = "ok"
	DomainStatusLowConfidence = "low_confidence"
	DomainStatusUnavailable   = "unavailable"
)

// 失败原因
const (
	RunReasonCancelled = "cancelled"
)

// AnalysisRun 一次编排执行，每个租户一行
type AnalysisRun struct {
	ID               int64       `gorm:"primaryKey" json:"id"`
	TenantID         int64       `gorm:"not null;index" json:"tenant_id"`
	IdempotencyKey   string      `gorm:"size:64;index" json:"idempotency_key,omitempty"`
	RequestedDomains StringArray `gorm:"type:json" json:"requested_domains"`
	Status           string      `gorm:"size:20;default:pending;index" json:"status"` // pending, running, completed, failed
	Progress         int         `gorm:"default:0" json:"progress"`                   // 0-100，按域完成边界更新
	DomainStatuses   StringMap   `gorm:"type:json" json:"domain_statuses"`            // domain → ok/low_confidence/unavailable
	RawResults       JSONMap     `gorm:"type:json" json:"raw_results,omitempty"`      // domain → 原始结果
	Attributes       JSONMap     `gorm:"type:json" json:"attributes,omitempty"`       // 域代理输入画像
	FailureReason    string      `gorm:"size:200" json:"failure_reason,omitempty"`
	TriggeredBy      string      `gorm:"size:50" json:"triggered_by,omitempty"` // api, scheduler, manual
	SubjectID        int64       `gorm:"index" json:"subject_id,omitempty"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (AnalysisRun) TableName() string {
	return "analysis_runs"
}

// Terminal 运行是否已到终态
func (r *AnalysisRun) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
