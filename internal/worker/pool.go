package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
)

const claimTimeout = 5 * time.Second

// Handler 队列任务处理函数，成功返回写入任务记录的结果
type Handler func(ctx context.Context, job *model.QueueJob) (model.JSONMap, error)

// TerminalError 不可重试的处理失败，任务立即永久失败
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal 把错误标记为不可重试
func Terminal(err error) error {
	return &TerminalError{Err: err}
}

// Pool 队列工作池：每个注册的队列一组独立的 worker 协程
type Pool struct {
	queue    *queue.Queue
	cfg      *config.Config
	handlers map[string]Handler

	// onPermanentFailure 任务永久失败时回调，用于回写触发执行/运行状态
	onPermanentFailure func(ctx context.Context, job *model.QueueJob, jobErr error)

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(q *queue.Queue, cfg *config.Config) *Pool {
	return &Pool{
		queue:    q,
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}
}

// Register 注册队列处理器
func (p *Pool) Register(queueName string, handler Handler) {
	p.handlers[queueName] = handler
}

// OnPermanentFailure 设置永久失败回调
func (p *Pool) OnPermanentFailure(fn func(ctx context.Context, job *model.QueueJob, jobErr error)) {
	p.onPermanentFailure = fn
}

// Start 为每个注册队列启动配置数量的 worker
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for queueName := range p.handlers {
		workers := p.cfg.QueueFor(queueName).Workers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			p.wg.Add(1)
			go p.runWorker(ctx, queueName, i)
		}
		log.Printf("Queue %s: %d workers started", queueName, workers)
	}
}

// Stop 停止全部 worker 并等待在途任务收尾
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	log.Println("Worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, queueName string, workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %s/%d shutting down", queueName, workerID)
			return
		default:
			job, err := p.queue.Claim(ctx, queueName, claimTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Worker %s/%d: claim failed: %v", queueName, workerID, err)
				continue
			}
			if job == nil {
				continue
			}

			log.Printf("Worker %s/%d: processing job %d (attempt %d/%d)",
				queueName, workerID, job.ID, job.Attempts, job.MaxAttempts)
			p.process(ctx, job)
		}
	}
}

// process 在任务的整体时钟预算内执行处理器并上报结果。
// 预算从任务入队起算，横跨全部重试与退避等待。
func (p *Pool) process(ctx context.Context, job *model.QueueJob) {
	handler := p.handlers[job.QueueName]

	jobCtx := ctx
	if job.TimeoutSec > 0 {
		deadline := job.CreatedAt.Add(time.Duration(job.TimeoutSec) * time.Second)
		if !time.Now().Before(deadline) {
			// 预算已在此前的尝试与退避中耗尽
			p.fail(job, Terminal(fmt.Errorf("job exceeded %ds deadline", job.TimeoutSec)))
			return
		}
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	result, err := handler(jobCtx, job)
	if err == nil {
		if cerr := p.queue.Complete(ctx, job.ID, result); cerr != nil {
			log.Printf("Job %d: failed to mark completed: %v", job.ID, cerr)
		}
		return
	}

	if jobCtx.Err() != nil && ctx.Err() == nil {
		// 整体预算用光，再重试也只会立即超时
		err = Terminal(fmt.Errorf("job exceeded %ds deadline: %w", job.TimeoutSec, err))
	}
	p.fail(job, err)
}

// fail 记录一次失败：可重试则安排退避重投，否则触发永久失败回调
func (p *Pool) fail(job *model.QueueJob, err error) {
	var terminalErr *TerminalError
	terminal := errors.As(err, &terminalErr)

	retried, ferr := p.queue.Fail(context.Background(), job, err, terminal)
	if ferr != nil {
		log.Printf("Job %d: failed to record failure: %v", job.ID, ferr)
		return
	}

	if retried {
		log.Printf("Job %d: failed, retry scheduled: %v", job.ID, err)
		return
	}

	log.Printf("Job %d: permanently failed: %v", job.ID, err)
	if p.onPermanentFailure != nil {
		p.onPermanentFailure(context.Background(), job, err)
	}
}
