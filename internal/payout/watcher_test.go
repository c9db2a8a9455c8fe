package payout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakePayments struct {
	updates chan PaymentUpdate
	errs    chan error
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		updates: make(chan PaymentUpdate, 8),
		errs:    make(chan error, 1),
	}
}

func (f *fakePayments) SubscribePayments(context.Context) (<-chan PaymentUpdate, <-chan error, error) {
	return f.updates, f.errs, nil
}

type fakePayoutStore struct {
	mu      sync.Mutex
	payouts map[[32]byte]*Payout
	paidOut map[uuid.UUID]bool
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{
		payouts: make(map[[32]byte]*Payout),
		paidOut: make(map[uuid.UUID]bool),
	}
}

func (f *fakePayoutStore) PayoutByPaymentHash(_ context.Context, hash [32]byte) (*Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payouts[hash], nil
}

func (f *fakePayoutStore) MarkPayoutSucceeded(_ context.Context, payoutID uuid.UUID, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payouts {
		if p.ID == payoutID {
			p.Status = StatusSucceeded
			p.FinishedAt = &finishedAt
		}
	}
	return nil
}

func (f *fakePayoutStore) MarkPayoutFailed(_ context.Context, payoutID uuid.UUID, finishedAt time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payouts {
		if p.ID == payoutID {
			p.Status = StatusFailed
			p.FinishedAt = &finishedAt
			p.FailureReason = reason
		}
	}
	return nil
}

func (f *fakePayoutStore) MarkEntryPaidOut(_ context.Context, entryID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paidOut[entryID] = true
	return nil
}

func TestPaymentWatcherMarksSucceededAndEntryPaidOut(t *testing.T) {
	payments := newFakePayments()
	store := newFakePayoutStore()

	entryID := uuid.New()
	hash := [32]byte{7, 7, 7}
	p := &Payout{
		ID:          uuid.New(),
		EntryID:     entryID,
		PaymentHash: hash,
		Status:      StatusPending,
	}
	store.payouts[hash] = p

	watcher := NewPaymentWatcher(payments, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	payments.updates <- PaymentUpdate{Hash: hash, Status: PaymentSucceeded, Preimage: []byte("preimage")}

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return p.Status == StatusSucceeded
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.paidOut[entryID]
	}, time.Second, 5*time.Millisecond)
}

func TestPaymentWatcherMarksFailedWithReason(t *testing.T) {
	payments := newFakePayments()
	store := newFakePayoutStore()

	hash := [32]byte{8, 8, 8}
	p := &Payout{
		ID:          uuid.New(),
		EntryID:     uuid.New(),
		PaymentHash: hash,
		Status:      StatusPending,
	}
	store.payouts[hash] = p

	watcher := NewPaymentWatcher(payments, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	payments.updates <- PaymentUpdate{Hash: hash, Status: PaymentFailed, Failure: "no route"}

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return p.Status == StatusFailed && p.FailureReason == "no route"
	}, time.Second, 5*time.Millisecond)
}

func TestPaymentWatcherIgnoresInFlightUpdates(t *testing.T) {
	payments := newFakePayments()
	store := newFakePayoutStore()

	hash := [32]byte{9}
	p := &Payout{ID: uuid.New(), PaymentHash: hash, Status: StatusPending}
	store.payouts[hash] = p

	watcher := NewPaymentWatcher(payments, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	payments.updates <- PaymentUpdate{Hash: hash, Status: PaymentInFlight}

	time.Sleep(20 * time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Equal(t, StatusPending, p.Status)
}
