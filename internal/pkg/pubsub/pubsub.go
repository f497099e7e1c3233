package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelRunProgress = "run_progress"
	ChannelRunCancel   = "run_cancel"
)

// ProgressMessage 运行进度消息，按域完成边界推送
type ProgressMessage struct {
	Type     string `json:"type"`
	TenantID int64  `json:"tenant_id"`
	RunID    int64  `json:"run_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"` // 0-100
	Domain   string `json:"domain,omitempty"`
	DomainStatus string `json:"domain_status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Type = "run_progress"

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelRunProgress, data).Err()
}

// CancelMessage 跨进程的运行取消信号。
// API 进程取消不在本进程执行的运行时广播，由 worker 进程接收并中断在途调用。
type CancelMessage struct {
	TenantID int64 `json:"tenant_id"`
	RunID    int64 `json:"run_id"`
}

// PublishCancel 发布取消信号
func (p *Publisher) PublishCancel(ctx context.Context, msg *CancelMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal cancel message: %w", err)
	}
	return p.client.Publish(ctx, ChannelRunCancel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelRunProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}

// SubscribeCancel 订阅取消信号
func (s *Subscriber) SubscribeCancel(ctx context.Context, handler func(*CancelMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelRunCancel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var cancelMsg CancelMessage
			if err := json.Unmarshal([]byte(msg.Payload), &cancelMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&cancelMsg)
		}
	}
}
