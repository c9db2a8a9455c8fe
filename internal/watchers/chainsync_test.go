package watchers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	mu      sync.Mutex
	heights []int32
}

func newFakeChain(heights ...int32) *fakeChain {
	return &fakeChain{heights: heights}
}

func (f *fakeChain) BlockHeight(context.Context) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heights) == 0 {
		return 0, nil
	}
	h := f.heights[0]
	if len(f.heights) > 1 {
		f.heights = f.heights[1:]
	}
	return h, nil
}

func TestChainSyncWatcherNotifiesOnNewBlock(t *testing.T) {
	chain := newFakeChain(100, 100, 101, 101)
	var notified int32

	w := NewChainSyncWatcher(chain, 5*time.Millisecond, func(_ context.Context, height int32) {
		atomic.StoreInt32(&notified, height)
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&notified) == 101
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, int32(101), w.Height())
}

func TestChainSyncWatcherStartStopGuarded(t *testing.T) {
	w := NewChainSyncWatcher(newFakeChain(10), time.Minute, nil)

	require.NoError(t, w.Start(context.Background()))
	require.Error(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	require.Error(t, w.Stop())
}
