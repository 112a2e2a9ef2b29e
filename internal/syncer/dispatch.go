package syncer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// RunFunc executes one job; Orchestrator.Run satisfies it.
type RunFunc func(ctx context.Context, jobID string) error

// PoolDispatcher runs jobs on goroutines inside the process, at most
// maxConcurrent at a time.
type PoolDispatcher struct {
	ctx context.Context
	run RunFunc
	sem chan struct{}
	wg  conc.WaitGroup
	log zerolog.Logger
}

// NewPoolDispatcher binds runs to ctx: cancelling it stops loops at their
// next batch boundary.
func NewPoolDispatcher(ctx context.Context, run RunFunc, maxConcurrent int, log zerolog.Logger) *PoolDispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &PoolDispatcher{
		ctx: ctx,
		run: run,
		sem: make(chan struct{}, maxConcurrent),
		log: log,
	}
}

func (d *PoolDispatcher) Dispatch(_ context.Context, jobID string) error {
	if d.ctx.Err() != nil {
		return errors.New("dispatcher is shutting down")
	}
	d.wg.Go(func() {
		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			d.log.Warn().Str("job_id", jobID).Msg("dropping queued sync run on shutdown")
			return
		}
		defer func() { <-d.sem }()

		if err := d.run(d.ctx, jobID); err != nil {
			d.log.Error().Err(err).Str("job_id", jobID).Msg("sync run failed")
		}
	})
	return nil
}

// Wait blocks until every dispatched run returned.
func (d *PoolDispatcher) Wait() {
	if r := d.wg.WaitAndRecover(); r != nil {
		d.log.Error().Str("panic", r.String()).Msg("sync run panicked")
	}
}
