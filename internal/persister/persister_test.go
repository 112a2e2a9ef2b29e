package persister

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/storesync/internal/database"
	"github.com/mrlokans/storesync/internal/database/records"
	"github.com/mrlokans/storesync/internal/database/testutil"
	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/mirror"
	"github.com/mrlokans/storesync/internal/transform"
)

type fakeNormalized struct {
	mu       sync.Mutex
	failIDs  map[string]bool
	written  []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeNormalized) Upsert(ctx context.Context, record entities.NormalizedRecord) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	if f.failIDs[record.ExternalKey()] {
		return errors.New("constraint violation")
	}
	f.mu.Lock()
	f.written = append(f.written, record.ExternalKey())
	f.mu.Unlock()
	return nil
}

type fakeMirror struct {
	err  error
	docs []*entities.MirrorDocument
}

func (f *fakeMirror) WriteBatch(ctx context.Context, docs []*entities.MirrorDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, docs...)
	return nil
}

func productOutcomes(t *testing.T, raws ...string) []transform.Outcome {
	t.Helper()
	items := make([]json.RawMessage, len(raws))
	for i, r := range raws {
		items[i] = json.RawMessage(r)
	}
	return transform.All(transform.Transform, entities.ResourceProducts, items)
}

func TestPersist_AllSucceed(t *testing.T) {
	norm := &fakeNormalized{}
	mir := &fakeMirror{}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := New(norm, mir, zerolog.Nop(), WithClock(func() time.Time { return at }))

	res := p.Persist(context.Background(), entities.ResourceProducts, productOutcomes(t, `{"id":"1"}`, `{"id":"2"}`))

	assert.False(t, res.Fatal())
	assert.NoError(t, res.Err())
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, 2, res.Persisted)
	assert.Zero(t, res.FailedItems())
	assert.ElementsMatch(t, []string{"1", "2"}, norm.written)
	require.Len(t, mir.docs, 2)
	assert.Equal(t, at, mir.docs[0].SyncedAt)
}

func TestPersist_TransformFailuresAreNotFatal(t *testing.T) {
	norm := &fakeNormalized{}
	mir := &fakeMirror{}
	p := New(norm, mir, zerolog.Nop())

	res := p.Persist(context.Background(), entities.ResourceProducts, productOutcomes(t, `{"id":"1"}`, `garbage`, `{"title":"no id"}`))

	assert.False(t, res.Fatal())
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, 2, res.TransformFailures)
	assert.Equal(t, 2, res.FailedItems())
	require.Len(t, res.Failures, 2)
	assert.Equal(t, StageTransform, res.Failures[0].Stage)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Len(t, mir.docs, 1)
}

func TestPersist_MirrorFailureIsNotFatal(t *testing.T) {
	norm := &fakeNormalized{}
	mir := &fakeMirror{err: errors.New("mirror unavailable")}
	p := New(norm, mir, zerolog.Nop())

	res := p.Persist(context.Background(), entities.ResourceProducts, productOutcomes(t, `{"id":"1"}`, `{"id":"2"}`))

	assert.False(t, res.Fatal())
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 2, res.MirrorFailures)
	assert.EqualError(t, res.MirrorErr, "mirror unavailable")
	for _, f := range res.Failures {
		assert.Equal(t, StageMirror, f.Stage)
	}
}

func TestPersist_NormalizedFailureIsFatal(t *testing.T) {
	norm := &fakeNormalized{failIDs: map[string]bool{"2": true}}
	mir := &fakeMirror{}
	p := New(norm, mir, zerolog.Nop())

	res := p.Persist(context.Background(), entities.ResourceProducts, productOutcomes(t, `{"id":"1"}`, `{"id":"2"}`, `{"id":"3"}`))

	assert.True(t, res.Fatal())
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 1, res.NormalizedFailures)

	var batchErr *BatchPersistError
	require.True(t, errors.As(res.Err(), &batchErr))
	assert.Equal(t, "2", batchErr.ExternalID)
	assert.Equal(t, 1, batchErr.Failed)
	assert.Equal(t, 3, batchErr.Total)
	assert.EqualError(t, errors.Unwrap(batchErr), "constraint violation")

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Index)
}

func TestPersist_BoundsConcurrency(t *testing.T) {
	norm := &fakeNormalized{}
	p := New(norm, &fakeMirror{}, zerolog.Nop(), WithConcurrency(2))

	raws := make([]string, 20)
	for i := range raws {
		raws[i] = `{"id":"` + strconv.Itoa(i+1) + `"}`
	}
	res := p.Persist(context.Background(), entities.ResourceProducts, productOutcomes(t, raws...))

	assert.Equal(t, 20, res.Persisted)
	assert.LessOrEqual(t, norm.peak.Load(), int32(2))
}

func TestPersist_EmptyBatch(t *testing.T) {
	p := New(&fakeNormalized{}, &fakeMirror{err: errors.New("unused")}, zerolog.Nop())

	res := p.Persist(context.Background(), entities.ResourceOrders, nil)
	assert.False(t, res.Fatal())
	assert.Zero(t, res.Items)
	assert.Zero(t, res.MirrorFailures)
}

func TestPersist_ReapplyingBatchIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	mirrorDB, err := database.OpenGorm(filepath.Join(t.TempDir(), "mirror.db"), database.Options{LogLevel: logger.Silent}, zerolog.Nop())
	require.NoError(t, err)
	mir, err := mirror.NewStore(mirrorDB, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mir.Close() })

	repo := records.NewRepository(db)
	p := New(repo, mir, zerolog.Nop())
	ctx := context.Background()

	batch := []string{`{"id":"gid://shopify/Product/1","title":"A"}`, `{"id":"gid://shopify/Product/2","title":"B"}`}
	for i := 0; i < 2; i++ {
		res := p.Persist(ctx, entities.ResourceProducts, productOutcomes(t, batch...))
		require.False(t, res.Fatal())
		require.Zero(t, res.MirrorFailures)
	}

	n, err := repo.Count(ctx, entities.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	m, err := mir.Count(ctx, entities.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m)
}
