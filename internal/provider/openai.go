package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/orgpulse/orgpulse_server/config"
)

const maxTokens = 1024

// OpenAIClient 基于 OpenAI 兼容接口的提供商实现。
// BaseURL 可指向任何兼容 chat-completions 的服务。
type OpenAIClient struct {
	client *openai.Client
	name   string
	model  string
}

func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		name:   cfg.Name,
		model:  cfg.Model,
	}
}

func (c *OpenAIClient) Name() string {
	return c.name
}

// Call 调用一次 chat completion 并解析结构化结果
func (c *OpenAIClient) Call(ctx context.Context, domain string, input map[string]interface{}) (*Response, error) {
	model := c.model
	if model == "" {
		model = openai.GPT4oMini
	}

	userPrompt, err := buildUserPrompt(domain, input)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(domain)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	return parseResponse(c.name, resp.Choices[0].Message.Content)
}

// parseResponse 将模型输出解析为统一的 Response
func parseResponse(providerName, content string) (*Response, error) {
	var raw struct {
		Score    float64                `json:"score"`
		Category string                 `json:"category"`
		Summary  string                 `json:"summary"`
		Details  map[string]interface{} `json:"details"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse provider output: %w", err)
	}
	if raw.Score < 0 || raw.Score > 100 {
		return nil, fmt.Errorf("provider score out of range: %.2f", raw.Score)
	}

	return &Response{
		Provider: providerName,
		Score:    raw.Score,
		Category: raw.Category,
		Summary:  raw.Summary,
		Details:  raw.Details,
	}, nil
}
