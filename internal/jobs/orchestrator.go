package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/metrics"
)

// Stage is one step of a pipeline
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// Summary is the success payload of a pipeline run
type Summary struct {
	Message string
	Count   int
}

// Pipeline is an ordered list of stages sharing one run's state.
// Summary is called after every stage succeeded.
type Pipeline struct {
	Stages  []Stage
	Summary func() Summary
}

// Factory builds a fresh pipeline for one job
type Factory func(ctx context.Context) (*Pipeline, error)

// Registry maps job types to pipeline factories
type Registry struct {
	factories map[entity.JobType]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[entity.JobType]Factory)}
}

// Register binds a factory to a job type, replacing any previous one
func (r *Registry) Register(t entity.JobType, f Factory) {
	r.factories[t] = f
}

// Types lists registered job types in name order
func (r *Registry) Types() []entity.JobType {
	types := make([]entity.JobType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Build creates the pipeline for t
func (r *Registry) Build(ctx context.Context, t entity.JobType) (*Pipeline, error) {
	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	return f(ctx)
}

// Diagnostics returns subordinate diagnostic text carried anywhere in err's
// chain, or "" when there is none
func Diagnostics(err error) string {
	var d interface{ Diagnostics() string }
	if errors.As(err, &d) {
		return d.Diagnostics()
	}
	return ""
}

// StageError reports which stage aborted a job
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// OrchestratorOptions configures an Orchestrator
type OrchestratorOptions struct {
	LeaseTimeout time.Duration // zero disables reclaiming
	StageTimeout time.Duration // zero disables the per-stage deadline
	Metrics      *metrics.Metrics
}

// Orchestrator claims jobs and runs their pipelines
type Orchestrator struct {
	ledger   *Ledger
	registry *Registry
	opts     OrchestratorOptions
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(ledger *Ledger, registry *Registry, opts OrchestratorOptions) *Orchestrator {
	return &Orchestrator{ledger: ledger, registry: registry, opts: opts}
}

// Ledger returns the underlying ledger
func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// Tick reclaims stale jobs, then claims and runs at most one job. It returns
// (nil, nil) when nothing was pending. A job whose pipeline failed is
// returned with status FAILED and a nil error.
func (o *Orchestrator) Tick(ctx context.Context) (*entity.Job, error) {
	if _, err := o.ledger.ReclaimStale(ctx, o.opts.LeaseTimeout); err != nil {
		return nil, fmt.Errorf("reclaiming stale jobs: %w", err)
	}

	job, err := o.ledger.ClaimNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		logger.Debug("No pending jobs", nil)
		return nil, nil
	}
	return o.execute(ctx, job)
}

// RunJob claims and runs one specific pending job
func (o *Orchestrator) RunJob(ctx context.Context, id uint) (*entity.Job, error) {
	job, err := o.ledger.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, job)
}

// Loop ticks until ctx is done. After a processed job it ticks again at
// once; otherwise it waits interval.
func (o *Orchestrator) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		next := interval
		job, err := o.Tick(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			logger.Error("Worker tick failed", logger.Fields{}, err)
		case job != nil:
			next = 0
		}
		timer.Reset(next)
	}
}

func (o *Orchestrator) execute(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	start := time.Now()
	fields := logger.Fields{"job_id": job.ID, "type": job.Type}
	logger.Info("Job started", fields)

	summary, runErr := o.run(ctx, job)

	// Finalize even when ctx was canceled mid-run
	finalCtx := context.WithoutCancel(ctx)
	var finalizeErr error
	if runErr != nil {
		finalizeErr = o.ledger.Fail(finalCtx, job, entity.JobResult{
			Error:       runErr.Error(),
			Diagnostics: Diagnostics(runErr),
		})
	} else {
		finalizeErr = o.ledger.Complete(finalCtx, job, entity.JobResult{
			Message: summary.Message,
			Count:   summary.Count,
		})
	}

	if errors.Is(finalizeErr, ErrLeaseLost) {
		logger.Warn("Job lease lost before finalizing", fields)
		return job, finalizeErr
	}
	if finalizeErr != nil {
		return job, finalizeErr
	}

	done := logger.Fields{
		"job_id":   job.ID,
		"type":     job.Type,
		"status":   job.Status,
		"duration": time.Since(start).String(),
	}
	if runErr != nil {
		logger.Error("Job failed", done, runErr)
	} else {
		done["count"] = summary.Count
		logger.Info("Job completed", done)
	}
	return job, nil
}

// run executes the pipeline stages in order; the first failure aborts
func (o *Orchestrator) run(ctx context.Context, job *entity.Job) (summary Summary, err error) {
	pipeline, err := o.registry.Build(ctx, job.Type)
	if err != nil {
		return Summary{}, err
	}

	for _, stage := range pipeline.Stages {
		if err := o.runStage(ctx, job, stage); err != nil {
			return Summary{}, &StageError{Stage: stage.Name(), Err: err}
		}
	}

	if pipeline.Summary != nil {
		summary = pipeline.Summary()
	}
	return summary, nil
}

func (o *Orchestrator) runStage(ctx context.Context, job *entity.Job, stage Stage) (err error) {
	stageCtx := ctx
	if o.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.opts.StageTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error("Stage panicked", logger.Fields{
				"job_id": job.ID,
				"stage":  stage.Name(),
				"stack":  string(debug.Stack()),
			}, err)
		}
		o.opts.Metrics.ObserveStage(string(job.Type), stage.Name(), time.Since(start), err)
	}()

	logger.Debug("Stage started", logger.Fields{"job_id": job.ID, "stage": stage.Name()})
	return stage.Run(stageCtx)
}
