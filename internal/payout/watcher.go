package payout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// PaymentState mirrors the outbound Lightning payment lifecycle, spec §6
// "subscribe-payments -> stream of {hash, status, failure, preimage}".
type PaymentState string

const (
	PaymentInFlight  PaymentState = "in_flight"
	PaymentSucceeded PaymentState = "succeeded"
	PaymentFailed    PaymentState = "failed"
)

// PaymentUpdate is one item off the payment subscription stream.
type PaymentUpdate struct {
	Hash     [32]byte
	Status   PaymentState
	Failure  string
	Preimage []byte
}

// Lightning is already declared in claim.go (SendPayment); Payments adds
// the subscription half the watcher needs.
type Payments interface {
	SubscribePayments(ctx context.Context) (<-chan PaymentUpdate, <-chan error, error)
}

// Store is the slice of persistence the payment watcher needs.
type Store interface {
	PayoutByPaymentHash(ctx context.Context, hash [32]byte) (*Payout, error)
	MarkPayoutSucceeded(ctx context.Context, payoutID uuid.UUID, finishedAt time.Time) error
	MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, finishedAt time.Time, reason string) error
	MarkEntryPaidOut(ctx context.Context, entryID uuid.UUID) error
}

// PaymentWatcher is the streaming consumer of the Lightning payment
// subscription, spec §4.5 "Payout watcher": "On a Succeeded payment
// whose hash matches a pending Payout row, mark the payout succeeded
// and the entry paid-out. On Failed, mark failed with reason."
type PaymentWatcher struct {
	payments Payments
	store    Store

	started int32
	stopped int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

func NewPaymentWatcher(payments Payments, store Store) *PaymentWatcher {
	return &PaymentWatcher{
		payments: payments,
		store:    store,
		quit:     make(chan struct{}),
	}
}

func (w *PaymentWatcher) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return errors.Errorf("payment watcher already started")
	}

	updates, errs, err := w.payments.SubscribePayments(ctx)
	if err != nil {
		return errors.Errorf("subscribe payments: %v", err)
	}

	w.wg.Add(1)
	go w.run(ctx, updates, errs)

	return nil
}

func (w *PaymentWatcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
		return errors.Errorf("payment watcher already stopped")
	}
	close(w.quit)
	w.wg.Wait()
	return nil
}

func (w *PaymentWatcher) run(ctx context.Context, updates <-chan PaymentUpdate, errs <-chan error) {
	defer w.wg.Done()

	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		case err := <-errs:
			log.Errorf("payment subscription error: %v", err)
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := w.handleUpdate(ctx, update); err != nil {
				log.Errorf("handle payment update for %x: %v", update.Hash, err)
			}
		}
	}
}

func (w *PaymentWatcher) handleUpdate(ctx context.Context, update PaymentUpdate) error {
	if update.Status == PaymentInFlight {
		return nil
	}

	p, err := w.store.PayoutByPaymentHash(ctx, update.Hash)
	if err != nil {
		return errors.Errorf("lookup payout by payment hash: %v", err)
	}
	if p == nil {
		return errors.Errorf("no pending payout found for payment hash %x", update.Hash)
	}

	now := time.Now()
	switch update.Status {
	case PaymentSucceeded:
		if err := w.store.MarkPayoutSucceeded(ctx, p.ID, now); err != nil {
			return errors.Errorf("mark payout succeeded: %v", err)
		}
		if err := w.store.MarkEntryPaidOut(ctx, p.EntryID); err != nil {
			return errors.Errorf("mark entry paid out: %v", err)
		}
	case PaymentFailed:
		if err := w.store.MarkPayoutFailed(ctx, p.ID, now, update.Failure); err != nil {
			return errors.Errorf("mark payout failed: %v", err)
		}
	}

	return nil
}
