// Package persister writes a transformed batch to the normalized store and
// the mirror at the same time and reports the outcome of every item.
package persister

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/iter"

	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/transform"
)

const DefaultWriteConcurrency = 8

// NormalizedWriter upserts one normalized record by external id.
type NormalizedWriter interface {
	Upsert(ctx context.Context, record entities.NormalizedRecord) error
}

// MirrorWriter stores a set of raw documents atomically.
type MirrorWriter interface {
	WriteBatch(ctx context.Context, docs []*entities.MirrorDocument) error
}

type Persister struct {
	normalized  NormalizedWriter
	mirror      MirrorWriter
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

type Option func(*Persister)

// WithConcurrency bounds the normalized write fan-out.
func WithConcurrency(n int) Option {
	return func(p *Persister) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock overrides the time stamped on synced records.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) { p.now = now }
}

func New(normalized NormalizedWriter, mirror MirrorWriter, log zerolog.Logger, opts ...Option) *Persister {
	p := &Persister{
		normalized:  normalized,
		mirror:      mirror,
		concurrency: DefaultWriteConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist writes the transformable items of a batch. The mirror transaction
// and the normalized upserts run concurrently; Persist returns once both are
// done. Transform and mirror failures are recorded but never make the result
// fatal.
func (p *Persister) Persist(ctx context.Context, rt entities.ResourceType, outcomes []transform.Outcome) *Result {
	result := &Result{ResourceType: rt, Items: len(outcomes)}

	syncedAt := p.now()
	records := make([]*transform.Record, 0, len(outcomes))
	docs := make([]*entities.MirrorDocument, 0, len(outcomes))
	indexes := make([]int, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Err != nil || o.Record == nil {
			err := o.Err
			if err == nil {
				err = fmt.Errorf("item %d produced no record", i)
			}
			result.addFailure(ItemOutcome{Index: i, Stage: StageTransform, Err: err})
			continue
		}
		o.Record.Normalized.MarkSynced(syncedAt)
		o.Record.Mirror.SyncedAt = syncedAt
		records = append(records, o.Record)
		docs = append(docs, o.Record.Mirror)
		indexes = append(indexes, i)
	}
	if len(records) == 0 {
		return result
	}

	var (
		mirrorErr error
		writeErrs []error
		wg        conc.WaitGroup
	)
	wg.Go(func() {
		mirrorErr = p.mirror.WriteBatch(ctx, docs)
	})
	wg.Go(func() {
		mapper := iter.Mapper[*transform.Record, error]{MaxGoroutines: p.concurrency}
		writeErrs = mapper.Map(records, func(rec **transform.Record) error {
			return p.normalized.Upsert(ctx, (*rec).Normalized)
		})
	})
	wg.Wait()

	for i, err := range writeErrs {
		if err != nil {
			result.addFailure(ItemOutcome{Index: indexes[i], ExternalID: records[i].ExternalID(), Stage: StageNormalized, Err: err})
			continue
		}
		result.Persisted++
	}

	if mirrorErr != nil {
		result.MirrorErr = mirrorErr
		for i, rec := range records {
			result.addFailure(ItemOutcome{Index: indexes[i], ExternalID: rec.ExternalID(), Stage: StageMirror, Err: mirrorErr})
		}
		p.log.Warn().Err(mirrorErr).Str("resource_type", rt.String()).Int("documents", len(docs)).Msg("mirror write failed")
	}

	return result
}
