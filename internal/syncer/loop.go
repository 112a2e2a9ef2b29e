package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/observability"
	"github.com/mrlokans/storesync/internal/persister"
	"github.com/mrlokans/storesync/internal/shopify"
	"github.com/mrlokans/storesync/internal/transform"
)

// loop pages through the upstream collection until it is drained, a batch
// fails fatally or the job is cancelled.
func (o *Orchestrator) loop(ctx context.Context, job *entities.SyncJob, r *run, log zerolog.Logger) error {
	rt := job.ResourceType
	// Writes that follow a fetch must not be torn by shutdown.
	writeCtx := context.WithoutCancel(ctx)

	cp, err := o.deps.Checkpoints.Get(ctx, rt)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	cursor := ""
	watermark := job.StartedAt
	if job.Resumed {
		cursor = cp.Cursor()
		if cursor != "" && cp.Watermark != nil {
			watermark = cp.Watermark
		}
		log.Info().Str("cursor", cursor).Msg("resuming from checkpoint")
	}

	opts := shopify.FetchOptions{
		PageSize:      job.Config.EffectiveBatchSize(),
		UpdatedAfter:  job.Config.UpdatedAfter,
		UpdatedBefore: job.Config.UpdatedBefore,
	}
	total := o.estimatedTotal(ctx, job, opts, log)

	var (
		processed int
		failed    int
		lastID    = cp.LastEntityID
	)
	for page := 1; ; page++ {
		if r.cancelled() {
			return ErrCancelled
		}
		if page > 1 {
			if err := o.pause(ctx, r); err != nil {
				return err
			}
		}

		started := time.Now()
		batch, err := o.deps.Fetcher.Fetch(ctx, rt, cursor, opts)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}

		outcomes := transform.All(o.deps.Transform, rt, batch.Items)
		result := o.deps.Persister.Persist(writeCtx, rt, outcomes)
		processed += len(batch.Items)
		failed += result.FailedItems()

		event := &entities.SyncEvent{
			JobID:              job.ID,
			ResourceType:       rt,
			Page:               page,
			Cursor:             cursor,
			Items:              len(batch.Items),
			Persisted:          result.Persisted,
			TransformFailures:  result.TransformFailures,
			NormalizedFailures: result.NormalizedFailures,
			MirrorFailures:     result.MirrorFailures,
			Status:             entities.SyncEventSuccess,
		}
		o.deps.Metrics.BatchProcessed(writeCtx, rt.String(), observability.BatchCounts{
			Persisted:          result.Persisted,
			TransformFailures:  result.TransformFailures,
			NormalizedFailures: result.NormalizedFailures,
			MirrorFailures:     result.MirrorFailures,
		}, time.Since(started))

		if result.Fatal() {
			batchErr := result.Err()
			o.recordEvent(writeCtx, event, batchErr, log)
			return fmt.Errorf("persist page %d: %w", page, batchErr)
		}

		if id := lastPersistedID(outcomes); id != "" {
			lastID = &id
		}
		next := &entities.Checkpoint{
			ResourceType: rt,
			LastEntityID: lastID,
			LastSyncTime: cp.LastSyncTime,
			JobID:        job.ID,
		}
		if batch.HasMore {
			nextCursor := batch.NextCursor
			next.LastCursor = &nextCursor
			next.Watermark = watermark
		} else {
			// Drained: the next incremental run starts where this pass began.
			next.LastSyncTime = watermark
		}
		if err := o.deps.Checkpoints.Set(writeCtx, next); err != nil {
			cpErr := &CheckpointWriteError{ResourceType: rt, Cursor: batch.NextCursor, Err: err}
			o.recordEvent(writeCtx, event, cpErr, log)
			return cpErr
		}
		cp = next

		o.recordEvent(writeCtx, event, nil, log)
		if err := o.deps.Jobs.UpdateProgress(writeCtx, job.ID, progress(processed, total), processed, failed); err != nil {
			log.Warn().Err(err).Msg("failed to update job progress")
		}
		o.invalidateAfterBatch(rt)

		log.Debug().
			Int("page", page).
			Int("items", len(batch.Items)).
			Int("persisted", result.Persisted).
			Int("failed_items", result.FailedItems()).
			Bool("has_more", batch.HasMore).
			Msg("batch persisted")
		if result.MirrorErr != nil {
			log.Warn().Err(result.MirrorErr).Int("page", page).Msg("batch missing from mirror")
		}

		if !batch.HasMore {
			return nil
		}
		cursor = batch.NextCursor
	}
}

// pause waits the inter-page delay, returning early on cancel or shutdown.
func (o *Orchestrator) pause(ctx context.Context, r *run) error {
	if o.opts.PageDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(o.opts.PageDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-r.cancelCh:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// estimatedTotal picks the denominator for progress. An exact count is
// cached so repeated jobs over the same query skip the upstream call.
func (o *Orchestrator) estimatedTotal(ctx context.Context, job *entities.SyncJob, opts shopify.FetchOptions, log zerolog.Logger) int {
	fallback := job.Config.EstimatedTotal
	if fallback <= 0 {
		fallback = o.opts.EstimatedTotal
	}
	if !job.Config.ExactProgress {
		return fallback
	}

	load := func() (any, error) {
		return o.deps.Fetcher.Count(ctx, job.ResourceType, opts)
	}
	var (
		value any
		err   error
	)
	if o.deps.Cache != nil {
		key := fmt.Sprintf("upstream:count:%s:%s", job.ResourceType, opts.SearchQuery())
		value, err = o.deps.Cache.GetOrLoad(key, o.opts.CountTTL, load)
	} else {
		value, err = load()
	}
	if err != nil {
		log.Warn().Err(err).Int("fallback", fallback).Msg("count query failed, using estimate")
		return fallback
	}
	if n, ok := value.(int); ok && n > 0 {
		return n
	}
	return fallback
}

func (o *Orchestrator) recordEvent(ctx context.Context, event *entities.SyncEvent, err error, log zerolog.Logger) {
	if err != nil {
		event.Status = entities.SyncEventFailed
		event.Error = err.Error()
	}
	if o.deps.Events == nil {
		return
	}
	if rerr := o.deps.Events.Record(ctx, event); rerr != nil {
		log.Warn().Err(rerr).Int("page", event.Page).Msg("failed to record sync event")
	}
}

func (o *Orchestrator) invalidateAfterBatch(rt entities.ResourceType) {
	if o.deps.Cache == nil {
		return
	}
	o.deps.Cache.Invalidate(rt.String() + ":")
	o.deps.Cache.Invalidate("jobs:")
	o.deps.Cache.Invalidate("checkpoint:" + rt.String())
}

// progress is min(100, processed/total*100).
func progress(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 100 {
		return 100
	}
	return p
}

func lastPersistedID(outcomes []transform.Outcome) string {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].Err == nil && outcomes[i].Record != nil {
			return outcomes[i].Record.ExternalID()
		}
	}
	return ""
}

var _ BatchPersister = (*persister.Persister)(nil)
