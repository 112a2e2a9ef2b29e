package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/storesync/internal/cache"
	"github.com/mrlokans/storesync/internal/database"
	"github.com/mrlokans/storesync/internal/database/checkpoints"
	"github.com/mrlokans/storesync/internal/database/events"
	"github.com/mrlokans/storesync/internal/database/jobs"
	"github.com/mrlokans/storesync/internal/database/records"
	"github.com/mrlokans/storesync/internal/database/testutil"
	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/mirror"
	"github.com/mrlokans/storesync/internal/persister"
	"github.com/mrlokans/storesync/internal/shopify"
)

type fetchCall struct {
	cursor string
	opts   shopify.FetchOptions
}

type fakeFetcher struct {
	mu         sync.Mutex
	pages      map[string]*shopify.Batch
	errs       map[string]error
	calls      []fetchCall
	count      int
	countCalls int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]*shopify.Batch{}, errs: map[string]error{}}
}

// page registers the batch served for cursor; items are product ids.
func (f *fakeFetcher) page(cursor, next string, ids ...int) {
	items := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		items[i] = json.RawMessage(fmt.Sprintf(`{"id":"gid://shopify/Product/%d","title":"Product %d"}`, id, id))
	}
	f.pages[cursor] = &shopify.Batch{Items: items, HasMore: next != "", NextCursor: next}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rt entities.ResourceType, cursor string, opts shopify.FetchOptions) (*shopify.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fetchCall{cursor: cursor, opts: opts})
	if err, ok := f.errs[cursor]; ok {
		return nil, err
	}
	batch, ok := f.pages[cursor]
	if !ok {
		return nil, &shopify.FatalFetchError{Attempts: 1, Err: fmt.Errorf("no page for cursor %q", cursor)}
	}
	return batch, nil
}

func (f *fakeFetcher) Count(ctx context.Context, rt entities.ResourceType, opts shopify.FetchOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return f.count, nil
}

func (f *fakeFetcher) cursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.cursor
	}
	return out
}

func (f *fakeFetcher) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// flakyWriter fails each listed external id once.
type flakyWriter struct {
	mu      sync.Mutex
	inner   persister.NormalizedWriter
	failIDs map[string]bool
}

func (w *flakyWriter) Upsert(ctx context.Context, record entities.NormalizedRecord) error {
	w.mu.Lock()
	fail := w.failIDs[record.ExternalKey()]
	delete(w.failIDs, record.ExternalKey())
	w.mu.Unlock()
	if fail {
		return errors.New("UNIQUE constraint failed")
	}
	return w.inner.Upsert(ctx, record)
}

type failingCheckpoints struct {
	CheckpointStore
}

func (failingCheckpoints) Set(ctx context.Context, cp *entities.Checkpoint) error {
	return errors.New("disk I/O error")
}

// inlineDispatcher runs jobs synchronously inside StartSync.
type inlineDispatcher struct {
	orch    *Orchestrator
	mu      sync.Mutex
	lastErr error
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, jobID string) error {
	err := d.orch.Run(ctx, jobID)
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return nil
}

// heldDispatcher accepts jobs without running them.
type heldDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *heldDispatcher) Dispatch(ctx context.Context, jobID string) error {
	d.mu.Lock()
	d.ids = append(d.ids, jobID)
	d.mu.Unlock()
	return nil
}

type harness struct {
	orch        *Orchestrator
	jobs        *jobs.Repository
	checkpoints *checkpoints.Repository
	events      *events.Repository
	records     *records.Repository
	mirror      *mirror.Store
	writer      *flakyWriter
	fetcher     *fakeFetcher
	cache       *cache.Cache
	inline      *inlineDispatcher
}

type harnessOption func(*harness, *Deps, *Options)

func withFailingCheckpointWrites() harnessOption {
	return func(h *harness, d *Deps, _ *Options) {
		d.Checkpoints = failingCheckpoints{CheckpointStore: h.checkpoints}
	}
}

// flakyJobs fails the next Get once with err.
type flakyJobs struct {
	JobStore
	mu      sync.Mutex
	failGet error
}

func (j *flakyJobs) Get(ctx context.Context, id string) (*entities.SyncJob, error) {
	j.mu.Lock()
	err := j.failGet
	j.failGet = nil
	j.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return j.JobStore.Get(ctx, id)
}

func withFlakyJobs(j *flakyJobs) harnessOption {
	return func(h *harness, d *Deps, _ *Options) {
		j.JobStore = h.jobs
		d.Jobs = j
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func withClock(c *testClock) harnessOption {
	return func(_ *harness, _ *Deps, o *Options) { o.Now = c.Now }
}

func withPageDelay(delay time.Duration) harnessOption {
	return func(_ *harness, _ *Deps, o *Options) { o.PageDelay = delay }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	db := testutil.OpenDB(t)
	mirrorDB, err := database.OpenGorm(filepath.Join(t.TempDir(), "mirror.db"), database.Options{LogLevel: logger.Silent}, zerolog.Nop())
	require.NoError(t, err)
	mirrorStore, err := mirror.NewStore(mirrorDB, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mirrorStore.Close() })

	h := &harness{
		jobs:        jobs.NewRepository(db),
		checkpoints: checkpoints.NewRepository(db),
		events:      events.NewRepository(db),
		records:     records.NewRepository(db),
		mirror:      mirrorStore,
		fetcher:     newFakeFetcher(),
		cache:       cache.New(cache.Config{}, zerolog.Nop()),
	}
	h.writer = &flakyWriter{inner: h.records, failIDs: map[string]bool{}}

	deps := Deps{
		Jobs:        h.jobs,
		Checkpoints: h.checkpoints,
		Events:      h.events,
		Fetcher:     h.fetcher,
		Persister:   persister.New(h.writer, mirrorStore, zerolog.Nop()),
		Cache:       h.cache,
	}
	options := Options{}
	for _, opt := range opts {
		opt(h, &deps, &options)
	}

	h.orch = New(deps, options, zerolog.Nop())
	h.inline = &inlineDispatcher{orch: h.orch}
	h.orch.SetDispatcher(h.inline)
	return h
}

func (h *harness) job(t *testing.T, id string) *entities.SyncJob {
	t.Helper()
	job, err := h.jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) checkpoint(t *testing.T, rt entities.ResourceType) *entities.Checkpoint {
	t.Helper()
	cp, err := h.checkpoints.Get(context.Background(), rt)
	require.NoError(t, err)
	return cp
}
