package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

// TestTenant 创建测试租户
func TestTenant(t *testing.T, db *gorm.DB, opts ...func(*model.Tenant)) *model.Tenant {
	t.Helper()

	tenant := &model.Tenant{
		Name:     fmt.Sprintf("tenant_%d", time.Now().UnixNano()%100000),
		IsActive: true,
	}

	for _, opt := range opts {
		opt(tenant)
	}

	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("Failed to create test tenant: %v", err)
	}

	return tenant
}

// WithConsensusThreshold 设置租户级共识阈值
func WithConsensusThreshold(threshold float64) func(*model.Tenant) {
	return func(tn *model.Tenant) {
		tn.ConsensusThreshold = threshold
	}
}

// TestSubject 创建测试主体
func TestSubject(t *testing.T, db *gorm.DB, tenantID int64, opts ...func(*model.Subject)) *model.Subject {
	t.Helper()

	subject := &model.Subject{
		TenantID:        tenantID,
		Name:            fmt.Sprintf("subject_%d", time.Now().UnixNano()%100000),
		Role:            "engineer",
		StrategyVersion: 1,
	}

	for _, opt := range opts {
		opt(subject)
	}

	if err := db.Create(subject).Error; err != nil {
		t.Fatalf("Failed to create test subject: %v", err)
	}

	return subject
}

// WithLastAnalyzedAt 设置上次分析时间
func WithLastAnalyzedAt(at time.Time) func(*model.Subject) {
	return func(s *model.Subject) {
		s.LastAnalyzedAt = &at
		s.AnalyzedStrategyVersion = s.StrategyVersion
		s.AnalyzedLearningCount = s.CompletedLearningCount
	}
}

// WithStrategyVersion 设置当前策略版本
func WithStrategyVersion(v int) func(*model.Subject) {
	return func(s *model.Subject) {
		s.StrategyVersion = v
	}
}

// WithLearningCount 设置已完成学习数
func WithLearningCount(n int) func(*model.Subject) {
	return func(s *model.Subject) {
		s.CompletedLearningCount = n
	}
}

// TestRun 创建测试运行
func TestRun(t *testing.T, db *gorm.DB, tenantID int64, opts ...func(*model.AnalysisRun)) *model.AnalysisRun {
	t.Helper()

	run := &model.AnalysisRun{
		TenantID:         tenantID,
		RequestedDomains: model.StringArray{"structure", "culture"},
		Status:           model.RunStatusPending,
		DomainStatuses:   model.StringMap{},
		RawResults:       model.JSONMap{},
	}

	for _, opt := range opts {
		opt(run)
	}

	if err := db.Create(run).Error; err != nil {
		t.Fatalf("Failed to create test run: %v", err)
	}

	return run
}

// WithRunStatus 设置运行状态
func WithRunStatus(status string) func(*model.AnalysisRun) {
	return func(r *model.AnalysisRun) {
		r.Status = status
	}
}

// WithDomainResult 写入某域的结果与状态
func WithDomainResult(domain, status string, result map[string]interface{}) func(*model.AnalysisRun) {
	return func(r *model.AnalysisRun) {
		r.DomainStatuses[domain] = status
		if result != nil {
			r.RawResults[domain] = result
		}
	}
}

// TestRule 创建测试规则
func TestRule(t *testing.T, db *gorm.DB, tenantID int64, opts ...func(*model.TriggerRule)) *model.TriggerRule {
	t.Helper()

	rule := &model.TriggerRule{
		TenantID:   tenantID,
		Name:       "structure below threshold",
		Field:      "dimensions.structure_health",
		Comparator: model.ComparatorLT,
		Threshold:  50,
		ActionType: "flag-structure-review",
		IsActive:   true,
	}

	for _, opt := range opts {
		opt(rule)
	}

	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("Failed to create test rule: %v", err)
	}

	return rule
}

// WithCondition 设置规则条件
func WithCondition(field, comparator string, threshold float64) func(*model.TriggerRule) {
	return func(r *model.TriggerRule) {
		r.Field = field
		r.Comparator = comparator
		r.Threshold = threshold
	}
}

// WithAction 设置规则动作
func WithAction(actionType string) func(*model.TriggerRule) {
	return func(r *model.TriggerRule) {
		r.ActionType = actionType
	}
}

// WithPriority 设置规则优先级
func WithPriority(p int) func(*model.TriggerRule) {
	return func(r *model.TriggerRule) {
		r.Priority = p
	}
}

// WithGlobal 设为全局规则
func WithGlobal() func(*model.TriggerRule) {
	return func(r *model.TriggerRule) {
		r.TenantID = 0
	}
}

// TestSnapshot 创建测试快照
func TestSnapshot(t *testing.T, db *gorm.DB, tenantID, runID int64, dims map[string]*float64) *model.OrganizationalSnapshot {
	t.Helper()

	overall := 0.0
	n := 0
	for _, v := range dims {
		if v != nil {
			overall += *v
			n++
		}
	}
	var overallPtr *float64
	if n > 0 {
		overall /= float64(n)
		overallPtr = &overall
	}

	snap := &model.OrganizationalSnapshot{
		TenantID:     tenantID,
		SourceRunID:  runID,
		OverallScore: overallPtr,
		Dimensions:   dims,
		TrendDelta:   model.ScoreMap{},
		Highlights:   model.StringArray{},
	}

	if err := db.Create(snap).Error; err != nil {
		t.Fatalf("Failed to create test snapshot: %v", err)
	}

	return snap
}

// Float64Ptr 返回浮点指针，测试辅助
func Float64Ptr(v float64) *float64 {
	return &v
}
