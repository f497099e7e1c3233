package dto

import (
	"time"
)

// CreateRunRequest 发起分析请求
type CreateRunRequest struct {
	Domains        []string               `json:"domains" binding:"required,min=1"`
	IdempotencyKey string                 `json:"idempotency_key"`
	SubjectID      int64                  `json:"subject_id"`
	Attributes     map[string]interface{} `json:"attributes"`
}

// CreateRunResponse 发起分析响应
type CreateRunResponse struct {
	RunID    int64  `json:"run_id"`
	JobID    int64  `json:"job_id"`
	Status   string `json:"status"`
	Existing bool   `json:"existing"` // 幂等命中已有运行
}

// RunStatusResponse 轮询用运行状态
type RunStatusResponse struct {
	RunID          int64             `json:"run_id"`
	Status         string            `json:"status"`
	Progress       int               `json:"progress"`
	DomainStatuses map[string]string `json:"domain_statuses,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// RunResultsResponse 运行的逐域详细结果
type RunResultsResponse struct {
	RunID          int64                  `json:"run_id"`
	Status         string                 `json:"status"`
	DomainStatuses map[string]string      `json:"domain_statuses"`
	RawResults     map[string]interface{} `json:"raw_results"`
	SnapshotID     int64                  `json:"snapshot_id,omitempty"`
}

// RunListItem 运行列表项
type RunListItem struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Domains     []string   `json:"domains"`
	TriggeredBy string     `json:"triggered_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SnapshotResponse 快照详情
type SnapshotResponse struct {
	ID           int64               `json:"id"`
	SourceRunID  int64               `json:"source_run_id"`
	OverallScore *float64            `json:"overall_score"`
	Dimensions   map[string]*float64 `json:"dimensions"`
	TrendDelta   map[string]*float64 `json:"trend_delta"`
	Highlights   []string            `json:"highlights"`
	CreatedAt    time.Time           `json:"created_at"`
}
