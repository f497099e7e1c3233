package model

import (
	"time"
)

// 支持的条件比较符
const (
	ComparatorLT  = "lt"
	ComparatorLTE = "lte"
	ComparatorGT  = "gt"
	ComparatorGTE = "gte"
	ComparatorEQ  = "eq"
	ComparatorNEQ = "neq"
)

// TriggerRule 租户级或平台级自动化规则，TenantID 为 0 表示全局规则
type TriggerRule struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	TenantID     int64     `gorm:"index" json:"tenant_id"` // 0 = 全局
	Name         string    `gorm:"size:200;not null" json:"name"`
	Field        string    `gorm:"size:200;not null" json:"field"` // 快照字段点路径，如 dimensions.structure_health
	Comparator   string    `gorm:"size:10;not null" json:"comparator"`
	Threshold    float64   `json:"threshold"`
	ActionType   string    `gorm:"size:100;not null;index" json:"action_type"`
	ActionConfig JSONMap   `gorm:"type:json" json:"action_config,omitempty"`
	Priority     int       `gorm:"default:0;index" json:"priority"` // 评估顺序：优先级降序，ID 升序
	Exclusive    bool      `gorm:"default:false" json:"exclusive"`  // 命中后停止评估后续规则
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (TriggerRule) TableName() string {
	return "trigger_rules"
}
