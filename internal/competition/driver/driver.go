// Package driver runs the competition state machine to completion, polling
// the store for active competitions and calling transition.Advance against
// each until it stalls or exhausts its per-tick budget. Built the way
// htlcswitch.Switch structures its forwarder goroutine: a single run loop
// behind Start/Stop guarded by atomics, shut down with a quit channel and
// a WaitGroup.
package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/5day4cast/coordinator-core/internal/build"
	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/competition/transition"
	"github.com/5day4cast/coordinator-core/internal/store"
	"github.com/go-errors/errors"
)

var log = build.Logger(build.SubsystemDriver)

// maxConsecutiveTransitions bounds how many immediate (same-tick) advances
// a single competition gets before the driver moves on to the rest of the
// batch, spec §4.1.2: a competition that keeps landing on states whose
// transition succeeds without any wait condition (e.g. EventCreated ->
// EntriesSubmitted once every entry is already in) shouldn't starve its
// siblings within one tick.
const maxConsecutiveTransitions = 10

// Config configures the driver's polling cadence.
type Config struct {
	// PollInterval is how long Run sleeps between ticks.
	PollInterval time.Duration
}

// Driver periodically advances every active competition's state machine.
type Driver struct {
	cfg  Config
	deps *transition.Deps

	store store.Store

	quit chan struct{}
	wg   sync.WaitGroup

	started atomic.Bool
	stopped atomic.Bool
}

// New creates a Driver ready to Start.
func New(cfg Config, deps *transition.Deps, store store.Store) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Driver{
		cfg:   cfg,
		deps:  deps,
		store: store,
		quit:  make(chan struct{}),
	}
}

// Start launches the driver's polling loop.
func (d *Driver) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("driver already started")
	}

	log.Infof("starting competition driver, poll interval %s", d.cfg.PollInterval)

	d.wg.Add(1)
	go d.run()

	return nil
}

// Stop signals the polling loop to exit and waits for it to finish.
func (d *Driver) Stop() error {
	if !d.stopped.CompareAndSwap(false, true) {
		return errors.New("driver already stopped")
	}

	log.Infof("stopping competition driver")

	close(d.quit)
	d.wg.Wait()

	return nil
}

// run is the driver's main loop. NOTE: this MUST be run as a goroutine.
func (d *Driver) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.Tick(context.Background()); err != nil {
				log.Errorf("tick failed: %v", err)
			}
		case <-d.quit:
			return
		}
	}
}

// Tick loads every active competition and advances each until its state
// machine stalls (the transition returns an error, or two consecutive
// calls to transition.Advance land on the same State), or until
// maxConsecutiveTransitions is reached, spec §4.1.2.
func (d *Driver) Tick(ctx context.Context) error {
	comps, err := d.store.ListActiveCompetitions(ctx)
	if err != nil {
		return errors.Errorf("list active competitions: %v", err)
	}

	for _, comp := range comps {
		d.advanceOne(ctx, comp)
	}

	return nil
}

// advanceOne drives a single competition's state machine forward as far
// as it will go within one tick. Errors are already folded into the
// competition's own transient-error bookkeeping by transition.Advance, so
// there's nothing left for the driver to do with them beyond logging and
// moving on to the next competition.
func (d *Driver) advanceOne(ctx context.Context, comp *competition.Competition) {
	for i := 0; i < maxConsecutiveTransitions; i++ {
		if comp.CurrentState.IsTerminal() {
			return
		}

		before := comp.CurrentState
		if err := transition.Advance(ctx, d.deps, comp); err != nil {
			log.Debugf("competition %s: %v", comp.ID, err)
			return
		}

		if comp.CurrentState == before {
			return
		}
	}
}
