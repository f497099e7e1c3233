package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

// ErrDispatchConflict 同一调度键已有非终态任务，拒绝入队
var ErrDispatchConflict = errors.New("调度键已有未完成任务")

// ErrJobExhausted 重试次数耗尽
var ErrJobExhausted = errors.New("任务重试次数已耗尽")

// Policy 单个队列的重试策略
type Policy struct {
	MaxAttempts int
	Backoff     string // fixed | exponential
	Base        time.Duration
	Timeout     time.Duration // 任务整体时钟预算
}

// PolicyFromConfig 从队列配置构造策略
func PolicyFromConfig(qc config.QueueConfig) Policy {
	return Policy{
		MaxAttempts: qc.MaxAttempts,
		Backoff:     qc.Backoff,
		Base:        time.Duration(qc.BackoffBaseSec) * time.Second,
		Timeout:     time.Duration(qc.JobTimeoutSec) * time.Second,
	}
}

// Delay 第 attempt 次失败后的退避时长
func (p Policy) Delay(attempt int) time.Duration {
	if p.Backoff == "fixed" {
		return p.Base
	}
	// exponential: base * 2^(attempt-1)
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Queue 持久化任务队列：gorm 行是任务的权威记录，
// Redis list 只作为 worker 的唤醒通道。
type Queue struct {
	jobs   *repository.JobRepository
	client *redis.Client
}

func New(jobs *repository.JobRepository, client *redis.Client) *Queue {
	return &Queue{jobs: jobs, client: client}
}

func listKey(queueName string) string {
	return "queue:" + queueName
}

// Enqueue 写入任务行并推送唤醒信号。
// dispatchKey 非空时执行调度键去重：同键存在非终态任务即拒绝。
func (q *Queue) Enqueue(ctx context.Context, queueName string, tenantID int64, payload model.JSONMap, dispatchKey string, policy Policy) (*model.QueueJob, error) {
	if dispatchKey != "" {
		active, err := q.jobs.HasActiveByDispatchKey(dispatchKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check dispatch key: %w", err)
		}
		if active {
			return nil, fmt.Errorf("%w: %s", ErrDispatchConflict, dispatchKey)
		}
	}

	job := &model.QueueJob{
		QueueName:   queueName,
		TenantID:    tenantID,
		DispatchKey: dispatchKey,
		Payload:     payload,
		MaxAttempts: policy.MaxAttempts,
		Backoff:     policy.Backoff,
		BackoffBase: int(policy.Base / time.Second),
		TimeoutSec:  int(policy.Timeout / time.Second),
		Status:      model.JobStatusPending,
		AvailableAt: time.Now(),
	}
	if err := q.jobs.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := q.push(ctx, queueName, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *Queue) push(ctx context.Context, queueName string, jobID int64) error {
	return q.client.LPush(ctx, listKey(queueName), strconv.FormatInt(jobID, 10)).Err()
}

// Claim 阻塞等待唤醒信号并以 pending→processing 条件更新认领任务。
// 唤醒超时或任务已被其他 worker 认领时返回 (nil, nil)。
func (q *Queue) Claim(ctx context.Context, queueName string, timeout time.Duration) (*model.QueueJob, error) {
	result, err := q.client.BRPop(ctx, timeout, listKey(queueName)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	jobID, err := strconv.ParseInt(result[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", result[1], err)
	}

	claimed, err := q.jobs.TryClaim(jobID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %d: %w", jobID, err)
	}
	if !claimed {
		// 已被其他 worker 认领，或退避期未到（由 ReleaseDue 重新投递）
		return nil, nil
	}

	return q.jobs.GetByID(jobID)
}

// Complete 任务成功结束
func (q *Queue) Complete(ctx context.Context, jobID int64, result model.JSONMap) error {
	return q.jobs.MarkCompleted(jobID, result)
}

// Fail 处理一次失败：有剩余次数则按退避重新入队，否则永久失败。
// 返回是否安排了重试。
func (q *Queue) Fail(ctx context.Context, job *model.QueueJob, jobErr error, terminal bool) (bool, error) {
	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	if terminal || job.Attempts >= job.MaxAttempts {
		if err := q.jobs.MarkFailed(job.ID, errMsg); err != nil {
			return false, err
		}
		return false, nil
	}

	policy := Policy{Backoff: job.Backoff, Base: time.Duration(job.BackoffBase) * time.Second}
	delay := policy.Delay(job.Attempts)
	availableAt := time.Now().Add(delay)

	if err := q.jobs.Requeue(job.ID, errMsg, availableAt); err != nil {
		return false, err
	}

	// 进程内定时再推送；进程重启后由 ReleaseDue 扫描兜底。
	// 重复推送无害：Claim 的条件更新会拒绝未到期的任务。
	queueName, jobID := job.QueueName, job.ID
	time.AfterFunc(delay, func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.push(pushCtx, queueName, jobID)
	})

	return true, nil
}

// ReleaseDue 将退避期已过的任务重新推送到唤醒通道
func (q *Queue) ReleaseDue(ctx context.Context, queueName string, limit int) (int, error) {
	ids, err := q.jobs.ListDue(queueName, time.Now(), limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if err := q.push(ctx, queueName, id); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// Len 唤醒通道当前长度
func (q *Queue) Len(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, listKey(queueName)).Result()
}
