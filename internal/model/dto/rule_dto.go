package dto

import (
	"time"
)

// CreateRuleRequest 创建触发规则
type CreateRuleRequest struct {
	Name         string                 `json:"name" binding:"required"`
	Field        string                 `json:"field" binding:"required"`
	Comparator   string                 `json:"comparator" binding:"required"`
	Threshold    float64                `json:"threshold"`
	ActionType   string                 `json:"action_type" binding:"required"`
	ActionConfig map[string]interface{} `json:"action_config"`
	Priority     int                    `json:"priority"`
	Exclusive    bool                   `json:"exclusive"`
}

// UpdateRuleRequest 更新触发规则，nil 字段不修改
type UpdateRuleRequest struct {
	Name         *string                `json:"name"`
	Field        *string                `json:"field"`
	Comparator   *string                `json:"comparator"`
	Threshold    *float64               `json:"threshold"`
	ActionType   *string                `json:"action_type"`
	ActionConfig map[string]interface{} `json:"action_config"`
	Priority     *int                   `json:"priority"`
	Exclusive    *bool                  `json:"exclusive"`
}

// RuleListItem 规则列表项
type RuleListItem struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Field      string    `json:"field"`
	Comparator string    `json:"comparator"`
	Threshold  float64   `json:"threshold"`
	ActionType string    `json:"action_type"`
	Priority   int       `json:"priority"`
	IsActive   bool      `json:"is_active"`
	Global     bool      `json:"global"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExecutionListItem 触发执行列表项
type ExecutionListItem struct {
	ID              int64      `json:"id"`
	RuleID          int64      `json:"rule_id"`
	SnapshotID      int64      `json:"snapshot_id"`
	ActionType      string     `json:"action_type"`
	Outcome         string     `json:"outcome"`
	OutcomeDetail   string     `json:"outcome_detail,omitempty"`
	DispatchedJobID int64      `json:"dispatched_job_id,omitempty"`
	FiredAt         time.Time  `json:"fired_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}
