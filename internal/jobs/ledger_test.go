package jobs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openStore(t *testing.T, path string) *storage.Storage {
	t.Helper()
	s, err := storage.Open(storage.Options{Driver: storage.DriverSQLite, Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(openStore(t, filepath.Join(t.TempDir(), "jobs.db")), nil)
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	first, err := l.Enqueue(ctx, entity.JobClubRefresh)
	require.NoError(t, err)
	second, err := l.Enqueue(ctx, entity.JobClubRefresh)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "duplicate enqueues are separate jobs")
	assert.Equal(t, entity.JobPending, first.Status)

	_, err = l.Enqueue(ctx, entity.JobType("BOGUS"))
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestClaimNext(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	job, err := l.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "nothing pending")

	older, err := l.Enqueue(ctx, entity.JobEventRefresh)
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, entity.JobClubRefresh)
	require.NoError(t, err)

	job, err = l.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, older.ID, job.ID, "oldest pending job first")
	assert.Equal(t, entity.JobRunning, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.NotEmpty(t, job.ClaimToken)
}

func TestCompleteAndFail(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Enqueue(ctx, entity.JobClubRefresh)
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, entity.JobEventRefresh)
	require.NoError(t, err)

	done, err := l.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, done, entity.JobResult{Message: "ok", Count: 3}))

	stored, err := l.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobCompleted, stored.Status)
	assert.NotNil(t, stored.EndedAt)
	assert.Equal(t, entity.JobResult{Message: "ok", Count: 3}, stored.Result.Data())

	assert.ErrorIs(t, l.Fail(ctx, done, entity.JobResult{Error: "late"}), ErrLeaseLost, "terminal jobs stay terminal")

	failed, err := l.ClaimNext(ctx)
	require.NoError(t, err)
	impostor := *failed
	impostor.ClaimToken = "not-the-token"
	assert.ErrorIs(t, l.Complete(ctx, &impostor, entity.JobResult{Message: "x"}), ErrLeaseLost)

	require.NoError(t, l.Fail(ctx, failed, entity.JobResult{Error: "header not found", Diagnostics: "line 1: foo"}))
	stored, err = l.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobFailed, stored.Status)
	assert.Equal(t, "header not found", stored.Result.Data().Error)
	assert.True(t, stored.Status.Terminal())
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	job, err := l.Enqueue(ctx, entity.JobClubRefresh)
	require.NoError(t, err)

	claimed, err := l.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobRunning, claimed.Status)

	_, err = l.Claim(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = l.Claim(ctx, 9999)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestReclaimStale(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Enqueue(ctx, entity.JobEventRefresh)
	require.NoError(t, err)
	_, err = l.Enqueue(ctx, entity.JobClubRefresh)
	require.NoError(t, err)

	stale, err := l.ClaimNext(ctx)
	require.NoError(t, err)

	n, err := l.ReclaimStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "job is still within its lease")

	base := time.Now().UTC()
	l.now = func() time.Time { return base.Add(2 * time.Hour) }

	fresh, err := l.ClaimNext(ctx)
	require.NoError(t, err)

	n, err = l.ReclaimStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := l.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobFailed, stored.Status)
	assert.Equal(t, "lease expired: worker did not finalize within 1h0m0s", stored.Result.Data().Error)

	// The abandoned worker cannot overwrite the reclaimed result
	assert.ErrorIs(t, l.Complete(ctx, stale, entity.JobResult{Message: "late"}), ErrLeaseLost)

	stored, err = l.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobRunning, stored.Status)

	n, err = l.ReclaimStale(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "zero lease disables reclaiming")
}

func TestConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	// Separate handles behave like separate worker processes
	ledgers := []*Ledger{
		NewLedger(openStore(t, path), nil),
		NewLedger(openStore(t, path), nil),
		NewLedger(openStore(t, path), nil),
	}

	const total = 12
	for i := 0; i < total; i++ {
		_, err := ledgers[0].Enqueue(ctx, entity.JobClubRefresh)
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[uint]int)
		wg      sync.WaitGroup
	)
	for _, l := range ledgers {
		wg.Add(1)
		go func(l *Ledger) {
			defer wg.Done()
			for {
				job, err := l.ClaimNext(ctx)
				if err != nil {
					t.Errorf("ClaimNext: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}(l)
	}
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %d claimed %d times", id, n)
	}

	running, err := ledgers[0].List(ctx, storage.JobFilter{Status: entity.JobRunning})
	require.NoError(t, err)
	assert.Len(t, running, total)
}

func TestConcurrentClaimsSingleJob(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "single.db")
	a := NewLedger(openStore(t, path), nil)
	b := NewLedger(openStore(t, path), nil)

	_, err := a.Enqueue(ctx, entity.JobEventRefresh)
	require.NoError(t, err)

	results := make(chan *entity.Job, 2)
	var wg sync.WaitGroup
	for _, l := range []*Ledger{a, b} {
		wg.Add(1)
		go func(l *Ledger) {
			defer wg.Done()
			job, err := l.ClaimNext(ctx)
			assert.NoError(t, err)
			results <- job
		}(l)
	}
	wg.Wait()
	close(results)

	winners := 0
	for job := range results {
		if job != nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one worker runs the job")
}

func TestList(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	for _, typ := range []entity.JobType{entity.JobClubRefresh, entity.JobEventRefresh, entity.JobClubRefresh} {
		_, err := l.Enqueue(ctx, typ)
		require.NoError(t, err)
	}

	all, err := l.List(ctx, storage.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Greater(t, all[0].ID, all[2].ID, "newest first")

	clubs, err := l.List(ctx, storage.JobFilter{Type: entity.JobClubRefresh, Limit: 1})
	require.NoError(t, err)
	require.Len(t, clubs, 1)
	assert.Equal(t, entity.JobClubRefresh, clubs[0].Type)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		name    string
		want    entity.JobType
		wantErr bool
	}{
		{"clubs", entity.JobClubRefresh, false},
		{" Events ", entity.JobEventRefresh, false},
		{"CLUB_REFRESH", entity.JobClubRefresh, false},
		{"courses", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseType(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownJobType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
