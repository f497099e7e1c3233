package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

var ErrSnapshotNotFound = errors.New("快照不存在")

type SnapshotService struct {
	snapshots *repository.SnapshotRepository
}

func NewSnapshotService(snapshots *repository.SnapshotRepository) *SnapshotService {
	return &SnapshotService{snapshots: snapshots}
}

// Latest 租户最新快照
func (s *SnapshotService) Latest(tenantID int64) (*dto.SnapshotResponse, error) {
	snap, err := s.snapshots.GetLatest(tenantID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrSnapshotNotFound
	}
	return toSnapshotResponse(snap), nil
}

// Get 按 ID 取快照
func (s *SnapshotService) Get(tenantID, snapshotID int64) (*dto.SnapshotResponse, error) {
	snap, err := s.snapshots.GetByID(snapshotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	if snap.TenantID != tenantID {
		return nil, ErrSnapshotNotFound
	}
	return toSnapshotResponse(snap), nil
}

// List 快照历史，新的在前
func (s *SnapshotService) List(tenantID int64, page, pageSize int) ([]*dto.SnapshotResponse, int64, error) {
	snaps, total, err := s.snapshots.ListByTenant(tenantID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, toSnapshotResponse(snap))
	}
	return items, total, nil
}

func toSnapshotResponse(snap *model.OrganizationalSnapshot) *dto.SnapshotResponse {
	return &dto.SnapshotResponse{
		ID:           snap.ID,
		SourceRunID:  snap.SourceRunID,
		OverallScore: snap.OverallScore,
		Dimensions:   snap.Dimensions,
		TrendDelta:   snap.TrendDelta,
		Highlights:   snap.Highlights,
		CreatedAt:    snap.CreatedAt,
	}
}
