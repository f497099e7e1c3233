package model

import (
	"time"
)

// 触发执行结果状态
const (
	ExecutionOutcomePending   = "pending"
	ExecutionOutcomeSucceeded = "succeeded"
	ExecutionOutcomeFailed    = "failed"
	ExecutionOutcomeSkipped   = "skipped" // 幂等跳过
)

// TriggerExecution 一条规则的一次命中记录
type TriggerExecution struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	RuleID          int64     `gorm:"not null;index" json:"rule_id"`
	TenantID        int64     `gorm:"not null;index" json:"tenant_id"`
	SnapshotID      int64     `gorm:"not null;index" json:"snapshot_id"`
	ActionType      string    `gorm:"size:100;not null" json:"action_type"`
	DispatchedJobID int64     `gorm:"index" json:"dispatched_job_id,omitempty"`
	Outcome         string    `gorm:"size:20;default:pending;index" json:"outcome"`
	OutcomeDetail   string    `gorm:"type:text" json:"outcome_detail,omitempty"`
	FiredAt         time.Time `gorm:"index" json:"fired_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func (TriggerExecution) TableName() string {
	return "trigger_executions"
}
