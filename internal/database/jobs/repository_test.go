package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/storesync/internal/database/testutil"
	"github.com/mrlokans/storesync/internal/entities"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(testutil.OpenDB(t))
}

func newJob(t *testing.T, repo *Repository, rt entities.ResourceType) *entities.SyncJob {
	t.Helper()
	job := &entities.SyncJob{
		ID:           uuid.NewString(),
		ResourceType: rt,
		Config:       entities.JobConfig{BatchSize: 25},
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := setupRepo(t)
	job := newJob(t, repo, entities.ResourceOrders)

	got, err := repo.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusPending, got.Status)
	assert.Equal(t, entities.ResourceOrders, got.ResourceType)
	assert.Equal(t, 25, got.Config.BatchSize)
	assert.Nil(t, got.CompletedAt)
}

func TestRepository_Get_NotFound(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_Lifecycle_Completed(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	job := newJob(t, repo, entities.ResourceProducts)

	require.NoError(t, repo.MarkProcessing(ctx, job.ID, time.Now()))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40, 20, 1))
	require.NoError(t, repo.Complete(ctx, job.ID, time.Now()))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 20, got.Processed)
	assert.Equal(t, 1, got.FailedItems)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
}

func TestRepository_UpdateProgress_Monotonic(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	job := newJob(t, repo, entities.ResourceOrders)
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, time.Now()))

	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 60, 60, 0))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 30, 70, 0))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)
	assert.Equal(t, 70, got.Processed)

	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 250, 80, 0))
	got, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
}

func TestRepository_TerminalStateIsFinal(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	job := newJob(t, repo, entities.ResourceOrders)
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, time.Now()))
	require.NoError(t, repo.Fail(ctx, job.ID, "upstream unavailable"))

	assert.ErrorIs(t, repo.Complete(ctx, job.ID, time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, repo.Fail(ctx, job.ID, "again"), ErrInvalidTransition)
	assert.ErrorIs(t, repo.MarkProcessing(ctx, job.ID, time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, repo.UpdateProgress(ctx, job.ID, 10, 1, 0), ErrInvalidTransition)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, got.Status)
	assert.Equal(t, "upstream unavailable", got.Error)
	assert.Nil(t, got.CompletedAt)
}

func TestRepository_Complete_RequiresProcessing(t *testing.T) {
	repo := setupRepo(t)
	job := newJob(t, repo, entities.ResourceOrders)

	assert.ErrorIs(t, repo.Complete(context.Background(), job.ID, time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, repo.Complete(context.Background(), "nope", time.Now()), ErrNotFound)
}

func TestRepository_Fail_DefaultMessage(t *testing.T) {
	repo := setupRepo(t)
	job := newJob(t, repo, entities.ResourceOrders)

	require.NoError(t, repo.Fail(context.Background(), job.ID, ""))

	got, err := repo.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "sync failed", got.Error)
}

func TestRepository_ListAndLatest(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first := &entities.SyncJob{ID: uuid.NewString(), ResourceType: entities.ResourceOrders, CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, first))
	second := newJob(t, repo, entities.ResourceOrders)
	newJob(t, repo, entities.ResourceProducts)

	all, err := repo.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	orders, err := repo.List(ctx, entities.ResourceOrders, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)

	latest, err := repo.Latest(ctx, entities.ResourceOrders)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = NewRepository(testutil.OpenDB(t)).Latest(ctx, entities.ResourceOrders)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_FailActive(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	pending := newJob(t, repo, entities.ResourceOrders)
	processing := newJob(t, repo, entities.ResourceProducts)
	require.NoError(t, repo.MarkProcessing(ctx, processing.ID, time.Now()))
	done := newJob(t, repo, entities.ResourceProducts)
	require.NoError(t, repo.MarkProcessing(ctx, done.ID, time.Now()))
	require.NoError(t, repo.Complete(ctx, done.ID, time.Now()))

	n, err := repo.FailActive(ctx, "sync was interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []string{pending.ID, processing.ID} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SyncStatusFailed, got.Status)
		assert.Equal(t, "sync was interrupted", got.Error)
	}

	got, err := repo.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, got.Status)
}

func TestRepository_FailPending(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	pending := newJob(t, repo, entities.ResourceOrders)
	require.NoError(t, repo.FailPending(ctx, pending.ID, "sync cancelled"))

	got, err := repo.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, got.Status)
	assert.Equal(t, "sync cancelled", got.Error)

	running := newJob(t, repo, entities.ResourceProducts)
	require.NoError(t, repo.MarkProcessing(ctx, running.ID, time.Now()))
	assert.ErrorIs(t, repo.FailPending(ctx, running.ID, "sync cancelled"), ErrInvalidTransition)
	assert.ErrorIs(t, repo.FailPending(ctx, "missing", "x"), ErrNotFound)
}
