// Package watchers hosts the long-lived background tasks that aren't
// themselves a single competition's state machine, spec §2's "Watchers"
// component: chain-tip awareness here, invoice settlement in
// internal/ticket, and payment settlement in internal/payout. Each is
// built the way htlcswitch/switch.go's htlcForwarder and peer.go's
// per-connection goroutines are: an atomic-guarded Start/Stop around a
// single background goroutine, torn down by closing a quit channel and
// waiting on a WaitGroup. Stop has no time limit; it returns once the
// goroutine has exited.
package watchers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/build"
)

var log = build.Logger(build.SubsystemWatcher)

// Chain is the slice of the consumed chain client the sync watcher
// needs: just the tip height, kept narrow here so this package doesn't
// pull in internal/chain's broader PSBT-signing surface.
type Chain interface {
	BlockHeight(ctx context.Context) (int32, error)
}

// ChainSyncWatcher polls the chain tip and notifies onNewBlock whenever
// it advances, so the driver can react to a freshly confirmed escrow,
// funding, or outcome transaction sooner than its own PollInterval would
// otherwise notice.
type ChainSyncWatcher struct {
	chain        Chain
	pollInterval time.Duration
	onNewBlock   func(ctx context.Context, height int32)

	lastHeight int32

	started int32
	stopped int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewChainSyncWatcher creates a watcher polling chain every pollInterval.
// onNewBlock may be nil if the caller only cares about the watcher
// keeping its own tip current.
func NewChainSyncWatcher(chain Chain, pollInterval time.Duration, onNewBlock func(ctx context.Context, height int32)) *ChainSyncWatcher {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &ChainSyncWatcher{
		chain:        chain,
		pollInterval: pollInterval,
		onNewBlock:   onNewBlock,
		quit:         make(chan struct{}),
	}
}

func (w *ChainSyncWatcher) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return errors.Errorf("chain sync watcher already started")
	}

	height, err := w.chain.BlockHeight(ctx)
	if err != nil {
		return errors.Errorf("initial block height: %v", err)
	}
	atomic.StoreInt32(&w.lastHeight, height)

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

func (w *ChainSyncWatcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
		return errors.Errorf("chain sync watcher already stopped")
	}
	close(w.quit)
	w.wg.Wait()
	return nil
}

// Height returns the most recently observed chain tip.
func (w *ChainSyncWatcher) Height() int32 {
	return atomic.LoadInt32(&w.lastHeight)
}

func (w *ChainSyncWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *ChainSyncWatcher) poll(ctx context.Context) {
	height, err := w.chain.BlockHeight(ctx)
	if err != nil {
		log.Errorf("poll block height: %v", err)
		return
	}

	prev := atomic.SwapInt32(&w.lastHeight, height)
	if height <= prev {
		return
	}

	log.Debugf("chain tip advanced %d -> %d", prev, height)
	if w.onNewBlock != nil {
		w.onNewBlock(ctx, height)
	}
}
