package service

import (
	"context"

	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/queue"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

// QueueService 队列运行状况
type QueueService struct {
	jobs  *repository.JobRepository
	queue *queue.Queue
}

func NewQueueService(jobs *repository.JobRepository, q *queue.Queue) *QueueService {
	return &QueueService{jobs: jobs, queue: q}
}

// Status 各命名队列的深度与积压
func (s *QueueService) Status(ctx context.Context) ([]*dto.QueueStatusItem, error) {
	names := []string{model.QueueAnalysis, model.QueueBonus, model.QueuePublishing, model.QueueNotification}

	items := make([]*dto.QueueStatusItem, 0, len(names))
	for _, name := range names {
		depth, err := s.queue.Len(ctx, name)
		if err != nil {
			return nil, err
		}
		pending, err := s.jobs.CountByStatus(name, model.JobStatusPending)
		if err != nil {
			return nil, err
		}
		failed, err := s.jobs.CountByStatus(name, model.JobStatusFailed)
		if err != nil {
			return nil, err
		}

		items = append(items, &dto.QueueStatusItem{
			Name:    name,
			Depth:   depth,
			Pending: pending,
			Failed:  failed,
		})
	}
	return items, nil
}
