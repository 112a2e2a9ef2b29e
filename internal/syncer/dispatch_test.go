package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDispatcher_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	var mu sync.Mutex
	var ran []string

	run := func(ctx context.Context, jobID string) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		mu.Lock()
		ran = append(ran, jobID)
		mu.Unlock()
		return nil
	}

	d := NewPoolDispatcher(context.Background(), run, 2, zerolog.Nop())
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, d.Dispatch(context.Background(), id))
	}

	assert.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	d.Wait()

	assert.Equal(t, int32(2), peak.Load())
	assert.Len(t, ran, 4)
}

func TestPoolDispatcher_RejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewPoolDispatcher(ctx, func(context.Context, string) error { return nil }, 1, zerolog.Nop())
	cancel()

	assert.Error(t, d.Dispatch(context.Background(), "late"))
	d.Wait()
}
