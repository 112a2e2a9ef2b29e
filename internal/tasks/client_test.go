package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		client.Stop(ctx)
		_ = client.Close()
	})
	return client
}

func TestNewClient(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	client, err := NewClient(dbPath, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, client)

	// Verify tasks database was created
	_, err = os.Stat(filepath.Join(tmpDir, "test-tasks.db"))
	assert.NoError(t, err, "tasks database should be created")
	assert.NoError(t, client.Ping(context.Background()))

	assert.NoError(t, client.Close())
}

func TestTasksDBPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "storesync-tasks.db"), TasksDBPath(filepath.Join("data", "storesync.db")))
	assert.Equal(t, "jobs-tasks", TasksDBPath("jobs"))
}

func TestClientStartStop(t *testing.T) {
	client := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.Start(ctx)

	// Give it time to start
	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()

	assert.True(t, client.Stop(stopCtx), "stop should succeed gracefully")
}

func TestClientStopWithoutStart(t *testing.T) {
	client := newTestClient(t)
	assert.True(t, client.Stop(context.Background()))
}

type recordingRunner struct {
	ran  chan string
	fail bool
}

func (r *recordingRunner) Run(ctx context.Context, jobID string) error {
	r.ran <- jobID
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func TestQueueDispatcher_RunsJob(t *testing.T) {
	client := newTestClient(t)
	runner := &recordingRunner{ran: make(chan string, 1)}
	client.Register(NewSyncRunQueue(runner))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Start(ctx)

	require.NoError(t, NewQueueDispatcher(client).Dispatch(ctx, "job-1"))

	select {
	case id := <-runner.ran:
		assert.Equal(t, "job-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("sync run was not executed within timeout")
	}
}

func TestSyncRunProcessor(t *testing.T) {
	runner := &recordingRunner{ran: make(chan string, 1), fail: true}
	err := SyncRunProcessor(runner)(context.Background(), SyncRunTask{JobID: "j"})
	assert.ErrorContains(t, err, "sync job j")

	assert.Error(t, SyncRunProcessor(nil)(context.Background(), SyncRunTask{JobID: "j"}))
}

func TestSyncRunTaskConfig(t *testing.T) {
	cfg := SyncRunTask{JobID: "x"}.Config()

	assert.Equal(t, "sync_run", cfg.Name)
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.Timeout)
	assert.Less(t, cfg.Timeout, DefaultConfig().ReleaseAfter)
	require.NotNil(t, cfg.Retention)
}

type fakeCleaner struct {
	cutoff time.Time
	err    error
}

func (f *fakeCleaner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestCleanupSyncEventsProcessor(t *testing.T) {
	cleaner := &fakeCleaner{}
	process := CleanupSyncEventsProcessor(cleaner, zerolog.Nop())

	require.NoError(t, process(context.Background(), CleanupSyncEventsTask{}))
	assert.WithinDuration(t, time.Now().Add(-30*24*time.Hour), cleaner.cutoff, time.Minute)

	require.NoError(t, process(context.Background(), CleanupSyncEventsTask{RetentionDays: 7}))
	assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), cleaner.cutoff, time.Minute)

	cleaner.err = errors.New("locked")
	assert.Error(t, process(context.Background(), CleanupSyncEventsTask{}))
	assert.Error(t, CleanupSyncEventsProcessor(nil, zerolog.Nop())(context.Background(), CleanupSyncEventsTask{}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 3*time.Hour, cfg.ReleaseAfter)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
}

var _ backlite.Task = SyncRunTask{}
var _ backlite.Task = CleanupSyncEventsTask{}
