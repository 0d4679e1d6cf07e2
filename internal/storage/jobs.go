package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// CreateJob inserts a new ledger row
func (s *Storage) CreateJob(ctx context.Context, job *entity.Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating %s job: %w", job.Type, err)
	}
	return nil
}

// GetJob loads a job by id, returning nil when it does not exist
func (s *Storage) GetJob(ctx context.Context, id uint) (*entity.Job, error) {
	var job entity.Job
	ok, err := first(s.db.WithContext(ctx).Where("id = ?", id), &job)
	if err != nil {
		return nil, fmt.Errorf("loading job %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &job, nil
}

// PendingJobIDs returns up to limit pending job ids, oldest first
func (s *Storage) PendingJobIDs(ctx context.Context, limit int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&entity.Job{}).
		Where("status = ?", entity.JobPending).
		Order("created_at, id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}
	return ids, nil
}

// ClaimJob moves a pending job to RUNNING under token. It reports false when
// the job was not pending anymore.
func (s *Storage) ClaimJob(ctx context.Context, id uint, token string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&entity.Job{}).
		Where("id = ? AND status = ?", id, entity.JobPending).
		Updates(map[string]any{
			"status":      entity.JobRunning,
			"started_at":  at,
			"claim_token": token,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claiming job %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// FinalizeJob moves a running job held by token to a terminal status. It
// reports false when the job is no longer running under that token.
func (s *Storage) FinalizeJob(ctx context.Context, id uint, token string, status entity.JobStatus, result entity.JobResult, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&entity.Job{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, entity.JobRunning, token).
		Updates(map[string]any{
			"status":   status,
			"ended_at": at,
			"result":   datatypes.NewJSONType(result),
		})
	if res.Error != nil {
		return false, fmt.Errorf("finalizing job %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RunningJobs returns every job currently marked RUNNING
func (s *Storage) RunningJobs(ctx context.Context) ([]entity.Job, error) {
	var jobs []entity.Job
	if err := s.db.WithContext(ctx).Where("status = ?", entity.JobRunning).Order("id").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing running jobs: %w", err)
	}
	return jobs, nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	Status entity.JobStatus
	Type   entity.JobType
	Limit  int
}

// ListJobs returns jobs newest first
func (s *Storage) ListJobs(ctx context.Context, f JobFilter) ([]entity.Job, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var jobs []entity.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}
