package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/storesync/internal/database/testutil"
	"github.com/mrlokans/storesync/internal/entities"
)

func TestRepository_RecordAndList(t *testing.T) {
	repo := NewRepository(testutil.OpenDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, &entities.SyncEvent{JobID: "j1", Page: 2, Items: 20, Status: entities.SyncEventFailed, Error: strings.Repeat("x", 600)}))
	require.NoError(t, repo.Record(ctx, &entities.SyncEvent{JobID: "j1", Page: 1, Items: 50, Persisted: 50, Status: entities.SyncEventSuccess}))
	require.NoError(t, repo.Record(ctx, &entities.SyncEvent{JobID: "j2", Page: 1}))

	events, err := repo.ListForJob(ctx, "j1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Page)
	assert.Equal(t, 2, events[1].Page)
	assert.Len(t, events[1].Error, 500)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	repo := NewRepository(testutil.OpenDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, &entities.SyncEvent{JobID: "old", CreatedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, repo.Record(ctx, &entities.SyncEvent{JobID: "new"}))

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := repo.ListForJob(ctx, "new", 10)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
