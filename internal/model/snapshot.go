package model

import (
	"time"
)

// 固定的画像维度集合，Snapshot Builder 之外不得新增
const (
	DimStructureHealth  = "structure_health"
	DimCultureAlignment = "culture_alignment"
	DimSkillsCoverage   = "skills_coverage"
	DimPerformanceIndex = "performance_index"
)

// OrganizationalSnapshot 一次完成运行的规范化产物，写入后不可变
type OrganizationalSnapshot struct {
	ID           int64       `gorm:"primaryKey" json:"id"`
	TenantID     int64       `gorm:"not null;index" json:"tenant_id"`
	SourceRunID  int64       `gorm:"not null;index" json:"source_run_id"`
	OverallScore *float64    `json:"overall_score"`                    // 仅基于存在的维度加权
	Dimensions   ScoreMap    `gorm:"type:json" json:"dimensions"`      // 缺失/低置信域为 null
	TrendDelta   ScoreMap    `gorm:"type:json" json:"trend_delta"`     // 无前序快照时为 null
	Highlights   StringArray `gorm:"type:json" json:"highlights"`      // 规则生成的有序要点
	ArchiveURL   string      `gorm:"size:500" json:"archive_url,omitempty"`
	CreatedAt    time.Time   `gorm:"index" json:"created_at"`
}

func (OrganizationalSnapshot) TableName() string {
	return "organizational_snapshots"
}
