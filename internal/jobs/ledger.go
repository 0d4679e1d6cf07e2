package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/metrics"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

var (
	// ErrLeaseLost means the job was finalized or reclaimed by someone else
	ErrLeaseLost = errors.New("job lease lost")
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("job not found")
	// ErrUnknownJobType is returned for a type with no registered pipeline
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrNotPending is returned when claiming a job that already left PENDING
	ErrNotPending = errors.New("job is not pending")
)

// claimBatch is how many pending candidates ClaimNext considers per query
const claimBatch = 16

// Ledger records job state transitions
type Ledger struct {
	store   *storage.Storage
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLedger creates a ledger over store. m may be nil.
func NewLedger(store *storage.Storage, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   store,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ValidType reports whether t names a known pipeline
func ValidType(t entity.JobType) bool {
	return t == entity.JobClubRefresh || t == entity.JobEventRefresh
}

// ParseType maps "clubs" and "events" (or the job type names themselves,
// in any case) to a job type
func ParseType(name string) (entity.JobType, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "clubs", "club_refresh":
		return entity.JobClubRefresh, nil
	case "events", "event_refresh":
		return entity.JobEventRefresh, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJobType, name)
}

// Enqueue records a new PENDING job. Pending jobs of the same type are
// never merged.
func (l *Ledger) Enqueue(ctx context.Context, t entity.JobType) (*entity.Job, error) {
	if !ValidType(t) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	job := &entity.Job{Type: t, Status: entity.JobPending, CreatedAt: l.now()}
	if err := l.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	l.metrics.JobEnqueued(string(t))
	logger.Info("Job enqueued", logger.Fields{"job_id": job.ID, "type": t})
	return job, nil
}

// ClaimNext claims the oldest pending job. It returns (nil, nil) when
// nothing is pending.
func (l *Ledger) ClaimNext(ctx context.Context) (*entity.Job, error) {
	for {
		ids, err := l.store.PendingJobIDs(ctx, claimBatch)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}

		for _, id := range ids {
			job, err := l.claim(ctx, id)
			if errors.Is(err, ErrNotPending) {
				// Lost the race, try the next candidate
				continue
			}
			return job, err
		}
	}
}

// Claim claims one specific pending job
func (l *Ledger) Claim(ctx context.Context, id uint) (*entity.Job, error) {
	job, err := l.claim(ctx, id)
	if errors.Is(err, ErrNotPending) {
		existing, getErr := l.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("job %d is %s: %w", id, existing.Status, ErrNotPending)
	}
	return job, err
}

func (l *Ledger) claim(ctx context.Context, id uint) (*entity.Job, error) {
	token := uuid.NewString()
	ok, err := l.store.ClaimJob(ctx, id, token, l.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}

	job, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Debug("Job claimed", logger.Fields{"job_id": id, "type": job.Type})
	return job, nil
}

// Complete finalizes a running job as COMPLETED
func (l *Ledger) Complete(ctx context.Context, job *entity.Job, result entity.JobResult) error {
	return l.finalize(ctx, job, entity.JobCompleted, result)
}

// Fail finalizes a running job as FAILED
func (l *Ledger) Fail(ctx context.Context, job *entity.Job, result entity.JobResult) error {
	return l.finalize(ctx, job, entity.JobFailed, result)
}

func (l *Ledger) finalize(ctx context.Context, job *entity.Job, status entity.JobStatus, result entity.JobResult) error {
	at := l.now()
	ok, err := l.store.FinalizeJob(ctx, job.ID, job.ClaimToken, status, result, at)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("finalizing job %d: %w", job.ID, ErrLeaseLost)
	}

	job.Status = status
	job.EndedAt = &at
	job.Result = datatypes.NewJSONType(result)
	l.metrics.JobFinalized(string(job.Type), string(status))
	return nil
}

// ReclaimStale fails RUNNING jobs that were started more than leaseTimeout
// ago, returning how many were reclaimed. They are not re-enqueued.
func (l *Ledger) ReclaimStale(ctx context.Context, leaseTimeout time.Duration) (int, error) {
	if leaseTimeout <= 0 {
		return 0, nil
	}

	running, err := l.store.RunningJobs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := l.now().Add(-leaseTimeout)
	reclaimed := 0
	for i := range running {
		job := &running[i]
		if job.StartedAt == nil || job.StartedAt.After(cutoff) {
			continue
		}

		result := entity.JobResult{
			Error: fmt.Sprintf("lease expired: worker did not finalize within %s", leaseTimeout),
		}
		if err := l.Fail(ctx, job, result); err != nil {
			if errors.Is(err, ErrLeaseLost) {
				continue // finalized concurrently
			}
			return reclaimed, err
		}

		reclaimed++
		logger.Warn("Reclaimed stale job", logger.Fields{
			"job_id":     job.ID,
			"type":       job.Type,
			"started_at": job.StartedAt.Format(time.RFC3339),
		})
	}

	l.metrics.JobsReclaimed(reclaimed)
	return reclaimed, nil
}

// Get loads one job
func (l *Ledger) Get(ctx context.Context, id uint) (*entity.Job, error) {
	job, err := l.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", id, ErrJobNotFound)
	}
	return job, nil
}

// List returns jobs newest first
func (l *Ledger) List(ctx context.Context, f storage.JobFilter) ([]entity.Job, error) {
	return l.store.ListJobs(ctx, f)
}
