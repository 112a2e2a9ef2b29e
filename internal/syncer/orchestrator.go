// Package syncer drives sync jobs: it pages through the upstream API, hands
// each batch to the persister and advances the checkpoint after every batch
// that reached the normalized store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrlokans/storesync/internal/cache"
	"github.com/mrlokans/storesync/internal/database/jobs"
	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/observability"
	"github.com/mrlokans/storesync/internal/transform"
)

const (
	DefaultPageDelay      = 500 * time.Millisecond
	DefaultEstimatedTotal = 1000
	DefaultCountTTL       = 5 * time.Minute

	interruptedMessage = "sync was interrupted"
)

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Jobs        JobStore
	Checkpoints CheckpointStore
	Events      EventLog
	Fetcher     Fetcher
	Transform   transform.Func
	Persister   BatchPersister
	Cache       *cache.Cache
	Metrics     *observability.SyncMetrics
}

type Options struct {
	PageDelay      time.Duration
	EstimatedTotal int
	CountTTL       time.Duration
	Now            func() time.Time
	NewID          func() string
}

// run is the in-memory reservation of a resource type by one job.
type run struct {
	jobID        string
	resourceType entities.ResourceType
	cancelCh     chan struct{}
	cancelOnce   sync.Once
	looping      bool
}

func (r *run) requestCancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

func (r *run) cancelled() bool {
	select {
	case <-r.cancelCh:
		return true
	default:
		return false
	}
}

type Orchestrator struct {
	deps       Deps
	opts       Options
	dispatcher Dispatcher
	log        zerolog.Logger

	mu     sync.Mutex
	active map[entities.ResourceType]*run
	runs   map[string]*run
}

func New(deps Deps, opts Options, log zerolog.Logger) *Orchestrator {
	if deps.Transform == nil {
		deps.Transform = transform.Transform
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}
	if opts.EstimatedTotal <= 0 {
		opts.EstimatedTotal = DefaultEstimatedTotal
	}
	if opts.CountTTL <= 0 {
		opts.CountTTL = DefaultCountTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		log:    log,
		active: make(map[entities.ResourceType]*run),
		runs:   make(map[string]*run),
	}
}

// SetDispatcher must be called before the first StartSync.
func (o *Orchestrator) SetDispatcher(d Dispatcher) {
	o.dispatcher = d
}

// StartSync creates a pending job and dispatches its run.
func (o *Orchestrator) StartSync(ctx context.Context, rt entities.ResourceType, cfg entities.JobConfig) (*entities.SyncJob, error) {
	return o.start(ctx, rt, cfg, false)
}

// ResumeSync starts a job from the stored checkpoint. A stored cursor is
// replayed with the config of the job that wrote it; otherwise the config of
// the most recent job is used and the run starts from the first page.
func (o *Orchestrator) ResumeSync(ctx context.Context, rt entities.ResourceType) (*entities.SyncJob, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrInvalidRequest, rt)
	}

	cp, err := o.deps.Checkpoints.Get(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("load %s checkpoint: %w", rt, err)
	}
	if cp.Cursor() != "" && cp.JobID != "" {
		writer, err := o.deps.Jobs.Get(ctx, cp.JobID)
		switch {
		case err == nil:
			return o.start(ctx, rt, writer.Config, true)
		case errors.Is(err, jobs.ErrNotFound):
		default:
			return nil, fmt.Errorf("load checkpoint job %s: %w", cp.JobID, err)
		}
	}

	var cfg entities.JobConfig
	latest, err := o.deps.Jobs.Latest(ctx, rt)
	switch {
	case err == nil:
		cfg = latest.Config
	case errors.Is(err, jobs.ErrNotFound):
	default:
		return nil, fmt.Errorf("load latest %s job: %w", rt, err)
	}

	return o.start(ctx, rt, cfg, true)
}

func (o *Orchestrator) start(ctx context.Context, rt entities.ResourceType, cfg entities.JobConfig, resumed bool) (*entities.SyncJob, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrInvalidRequest, rt)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if o.dispatcher == nil {
		return nil, errors.New("no dispatcher configured")
	}

	// Resolve the incremental watermark now so a later resume repeats the exact query.
	if cfg.Incremental && cfg.UpdatedAfter == nil {
		cp, err := o.deps.Checkpoints.Get(ctx, rt)
		if err != nil {
			return nil, fmt.Errorf("load %s checkpoint: %w", rt, err)
		}
		if cp.LastSyncTime != nil {
			after := *cp.LastSyncTime
			cfg.UpdatedAfter = &after
		}
	}

	job := &entities.SyncJob{
		ID:           o.opts.NewID(),
		ResourceType: rt,
		Status:       entities.SyncStatusPending,
		Resumed:      resumed,
		Config:       cfg,
		CreatedAt:    o.opts.Now(),
	}

	r, err := o.reserve(job)
	if err != nil {
		return nil, err
	}

	if err := o.deps.Jobs.Create(ctx, job); err != nil {
		o.release(r)
		return nil, fmt.Errorf("create sync job: %w", err)
	}
	o.invalidateJobs()

	if err := o.dispatcher.Dispatch(ctx, job.ID); err != nil {
		o.release(r)
		if ferr := o.deps.Jobs.Fail(context.WithoutCancel(ctx), job.ID, "dispatch failed: "+err.Error()); ferr != nil {
			o.log.Error().Err(ferr).Str("job_id", job.ID).Msg("failed to mark undispatched job as failed")
		}
		o.invalidateJobs()
		return nil, fmt.Errorf("dispatch sync job: %w", err)
	}

	o.log.Info().Str("job_id", job.ID).Str("resource_type", rt.String()).Bool("resumed", resumed).Msg("sync job created")
	return job, nil
}

func (o *Orchestrator) reserve(job *entities.SyncJob) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.active[job.ResourceType]; ok {
		return nil, &SyncInProgressError{ResourceType: job.ResourceType, JobID: existing.jobID}
	}
	r := &run{jobID: job.ID, resourceType: job.ResourceType, cancelCh: make(chan struct{})}
	o.active[job.ResourceType] = r
	o.runs[job.ID] = r
	return r, nil
}

func (o *Orchestrator) release(r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active[r.resourceType] == r {
		delete(o.active, r.resourceType)
	}
	delete(o.runs, r.jobID)
}

// releaseJob drops the reservation held for jobID, if any.
func (o *Orchestrator) releaseJob(jobID string) {
	o.mu.Lock()
	r := o.runs[jobID]
	o.mu.Unlock()
	if r != nil && !r.looping {
		o.release(r)
	}
}

// ActiveJob returns the id of the job holding rt, if any.
func (o *Orchestrator) ActiveJob(rt entities.ResourceType) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.active[rt]
	if !ok {
		return "", false
	}
	return r.jobID, true
}

// ActiveJobs returns the ids of every reserved job keyed by resource type.
func (o *Orchestrator) ActiveJobs() map[entities.ResourceType]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[entities.ResourceType]string, len(o.active))
	for rt, r := range o.active {
		out[rt] = r.jobID
	}
	return out
}

// Cancel asks a job to stop. A running loop stops at the next batch
// boundary; a job no loop has picked up yet is failed right away.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.deps.Jobs.Get(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("load sync job: %w", err)
	}
	if job.Status.Terminal() {
		return ErrJobFinished
	}

	o.mu.Lock()
	r := o.runs[jobID]
	if r != nil {
		r.requestCancel()
	}
	looping := r != nil && r.looping
	o.mu.Unlock()

	o.log.Info().Str("job_id", jobID).Bool("running", looping).Msg("sync cancellation requested")
	if looping {
		return nil
	}

	err = o.deps.Jobs.FailPending(ctx, jobID, ErrCancelled.Error())
	switch {
	case err == nil:
		if r != nil {
			o.release(r)
		}
		o.invalidateJobs()
	case errors.Is(err, jobs.ErrInvalidTransition):
		// The loop started in the meantime and will observe the flag.
	default:
		return fmt.Errorf("cancel sync job: %w", err)
	}
	return nil
}

// Recover fails jobs left non-terminal by a previous process.
func (o *Orchestrator) Recover(ctx context.Context) (int64, error) {
	n, err := o.deps.Jobs.FailActive(ctx, interruptedMessage)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if n > 0 {
		o.log.Warn().Int64("jobs", n).Msg("marked interrupted sync jobs as failed")
		o.invalidateJobs()
	}
	return n, nil
}

// Run executes one job to a terminal state. Runs for jobs that are no longer
// pending are skipped.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.deps.Jobs.Get(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		o.releaseJob(jobID)
		return ErrJobNotFound
	}
	if err != nil {
		err = fmt.Errorf("load sync job: %w", err)
		// Nothing will run this job, so free its resource type.
		if ferr := o.deps.Jobs.FailPending(context.WithoutCancel(ctx), jobID, err.Error()); ferr != nil {
			o.log.Warn().Err(ferr).Str("job_id", jobID).Msg("failed to mark unloadable job as failed")
		}
		o.releaseJob(jobID)
		o.invalidateJobs()
		return err
	}
	if job.Status != entities.SyncStatusPending {
		o.log.Info().Str("job_id", jobID).Str("status", string(job.Status)).Msg("skipping run of non-pending job")
		return nil
	}

	r, err := o.claim(job)
	if err != nil {
		_ = o.deps.Jobs.FailPending(context.WithoutCancel(ctx), jobID, err.Error())
		o.invalidateJobs()
		return err
	}
	defer o.release(r)

	log := o.log.With().Str("job_id", job.ID).Str("resource_type", job.ResourceType.String()).Logger()
	bg := context.WithoutCancel(ctx)

	if r.cancelled() {
		_ = o.deps.Jobs.FailPending(bg, job.ID, ErrCancelled.Error())
		o.invalidateJobs()
		return nil
	}

	startedAt := o.opts.Now()
	if err := o.deps.Jobs.MarkProcessing(ctx, job.ID, startedAt); err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			log.Info().Msg("job left pending before its run started")
			return nil
		}
		return fmt.Errorf("mark job processing: %w", err)
	}
	job.Status = entities.SyncStatusProcessing
	job.StartedAt = &startedAt
	o.invalidateJobs()

	o.deps.Metrics.JobStarted(bg, job.ResourceType.String())
	log.Info().Bool("resumed", job.Resumed).Int("batch_size", job.Config.EffectiveBatchSize()).Msg("sync started")

	loopErr := o.loop(ctx, job, r, log)

	status := entities.SyncStatusCompleted
	switch {
	case loopErr == nil:
		if err := o.deps.Jobs.Complete(bg, job.ID, o.opts.Now()); err != nil {
			log.Error().Err(err).Msg("failed to mark job completed")
			loopErr = err
			status = entities.SyncStatusFailed
		} else {
			log.Info().Msg("sync completed")
		}
	default:
		status = entities.SyncStatusFailed
		msg := loopErr.Error()
		if ctx.Err() != nil && errors.Is(loopErr, ctx.Err()) {
			msg = interruptedMessage
		}
		if err := o.deps.Jobs.Fail(bg, job.ID, msg); err != nil {
			log.Error().Err(err).Msg("failed to mark job failed")
		}
		if errors.Is(loopErr, ErrCancelled) {
			log.Info().Msg("sync cancelled")
			loopErr = nil
		} else {
			log.Error().Err(loopErr).Msg("sync failed")
		}
	}

	o.invalidateJobs()
	o.deps.Metrics.JobFinished(bg, job.ResourceType.String(), string(status))
	return loopErr
}

// claim marks the reservation as looping, creating it for jobs dispatched
// by another orchestrator instance (e.g. a task replayed from the queue).
func (o *Orchestrator) claim(job *entities.SyncJob) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.runs[job.ID]
	if !ok {
		if existing, busy := o.active[job.ResourceType]; busy {
			return nil, &SyncInProgressError{ResourceType: job.ResourceType, JobID: existing.jobID}
		}
		r = &run{jobID: job.ID, resourceType: job.ResourceType, cancelCh: make(chan struct{})}
		o.active[job.ResourceType] = r
		o.runs[job.ID] = r
	}
	r.looping = true
	return r, nil
}

func (o *Orchestrator) invalidateJobs() {
	if o.deps.Cache != nil {
		o.deps.Cache.Invalidate("jobs:")
	}
}
