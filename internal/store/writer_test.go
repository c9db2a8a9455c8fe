package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSerializedWriterRunsOneJobAtATime(t *testing.T) {
	w := NewSerializedWriter(16)
	require.NoError(t, w.Start())
	defer w.Stop()

	var inFlight int32
	var maxObserved int32
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Submit(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				mu.Lock()
				if n > maxObserved {
					maxObserved = n
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxObserved)
}

func TestSerializedWriterPropagatesJobError(t *testing.T) {
	w := NewSerializedWriter(1)
	require.NoError(t, w.Start())
	defer w.Stop()

	err := w.Submit(context.Background(), func(context.Context) error {
		return require.AnError
	})
	require.ErrorIs(t, err, require.AnError)
}
