package provider

import (
	"context"
	"errors"
)

// ErrUnavailable 提供商不可用（配置缺失、网络失败等）
var ErrUnavailable = errors.New("provider unavailable")

// Response 单个提供商对一个分析域的结构化响应
type Response struct {
	Provider string                 `json:"provider"`
	Score    float64                `json:"score"`    // 0-100
	Category string                 `json:"category"` // 分类型结论，可为空
	Summary  string                 `json:"summary,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Client 一个外部知识/推理服务。实现自身不做重试，
// 超时与失败处理由共识引擎负责。
type Client interface {
	Name() string
	Call(ctx context.Context, domain string, input map[string]interface{}) (*Response, error)
}

// FuncClient 将函数适配为 Client，测试与共识引擎单测使用
type FuncClient struct {
	ClientName string
	Fn         func(ctx context.Context, domain string, input map[string]interface{}) (*Response, error)
}

func (f *FuncClient) Name() string {
	return f.ClientName
}

func (f *FuncClient) Call(ctx context.Context, domain string, input map[string]interface{}) (*Response, error) {
	return f.Fn(ctx, domain, input)
}
