package model

import (
	"time"
)

// Tenant 平台租户，APIKeyHash 为 bcrypt 哈希
type Tenant struct {
	ID                 int64     `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"size:200;not null" json:"name"`
	APIKeyHash         string    `gorm:"size:100" json:"-"`
	ConsensusThreshold float64   `gorm:"default:0" json:"consensus_threshold,omitempty"` // 0 使用全局默认
	IsActive           bool      `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Subject 分析主体（组织单元或成员），重分析调度器的信号依据
type Subject struct {
	ID                      int64      `gorm:"primaryKey" json:"id"`
	TenantID                int64      `gorm:"not null;index" json:"tenant_id"`
	Name                    string     `gorm:"size:200;not null" json:"name"`
	Role                    string     `gorm:"size:100" json:"role"`
	RoleChangedAt           *time.Time `json:"role_changed_at,omitempty"`
	StrategyVersion         int        `gorm:"default:1" json:"strategy_version"`
	CompletedLearningCount  int        `gorm:"default:0" json:"completed_learning_count"`
	LastAnalyzedAt          *time.Time `gorm:"index" json:"last_analyzed_at,omitempty"`
	AnalyzedStrategyVersion int        `gorm:"default:0" json:"analyzed_strategy_version"`
	AnalyzedLearningCount   int        `gorm:"default:0" json:"analyzed_learning_count"`
	Attributes              JSONMap    `gorm:"type:json" json:"attributes,omitempty"` // 域代理的输入画像
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func (Subject) TableName() string {
	return "subjects"
}
