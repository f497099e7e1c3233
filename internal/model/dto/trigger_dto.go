package dto

// ManualTriggerRequest 运维手动触发：指定规则重评估或主体重分析
type ManualTriggerRequest struct {
	RuleID    int64  `json:"rule_id"`
	SubjectID int64  `json:"subject_id"`
	Reason    string `json:"reason" binding:"required"`
}

// ManualTriggerResponse 手动触发结果
type ManualTriggerResponse struct {
	Triggered bool   `json:"triggered"`
	Detail    string `json:"detail,omitempty"`
	RequestID int64  `json:"request_id,omitempty"`
	JobID     int64  `json:"job_id,omitempty"`
}

// QueueStatusItem 队列深度
type QueueStatusItem struct {
	Name    string `json:"name"`
	Depth   int64  `json:"depth"`
	Pending int64  `json:"pending"`
	Failed  int64  `json:"failed"`
}

// TokenRequest 租户换取访问令牌
type TokenRequest struct {
	TenantID int64  `json:"tenant_id" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// TokenResponse 访问令牌
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
