package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-errors/errors"
)

// SerializedWriter is the single dedicated writer channel spec §5
// requires: "Writes go through a dedicated serialized channel (one
// writer at a time, per-call closures) so that concurrent state
// transitions on the same competition cannot interleave." Lifecycle
// follows htlcswitch/switch.go's atomic-guarded Start/Stop.
type SerializedWriter struct {
	jobs chan writeJob

	started int32
	stopped int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

type writeJob struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// NewSerializedWriter creates a writer with the given job queue depth.
func NewSerializedWriter(queueDepth int) *SerializedWriter {
	return &SerializedWriter{
		jobs: make(chan writeJob, queueDepth),
		quit: make(chan struct{}),
	}
}

func (w *SerializedWriter) Start() error {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return errors.Errorf("writer already started")
	}
	w.wg.Add(1)
	go w.run()
	return nil
}

func (w *SerializedWriter) Stop() error {
	if !atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
		return errors.Errorf("writer already stopped")
	}
	close(w.quit)
	w.wg.Wait()
	return nil
}

func (w *SerializedWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case job := <-w.jobs:
			job.done <- job.fn(job.ctx)
		}
	}
}

// Submit enqueues a write closure and blocks until it has run (or the
// caller's context is cancelled first), guaranteeing no two writes
// execute concurrently regardless of how many callers submit at once.
func (w *SerializedWriter) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	job := writeJob{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case w.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return errors.Errorf("writer is stopped")
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
