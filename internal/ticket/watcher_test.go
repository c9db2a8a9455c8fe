package ticket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator-core/internal/secret"
)

type fakeLightning struct {
	mu        sync.Mutex
	updates   chan InvoiceUpdate
	errs      chan error
	settled   [][]byte
	cancelled [][32]byte
}

func newFakeLightning() *fakeLightning {
	return &fakeLightning{
		updates: make(chan InvoiceUpdate, 8),
		errs:    make(chan error, 1),
	}
}

func (f *fakeLightning) SubscribeInvoices(context.Context) (<-chan InvoiceUpdate, <-chan error, error) {
	return f.updates, f.errs, nil
}

func (f *fakeLightning) SettleInvoice(_ context.Context, preimage []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, preimage)
	return nil
}

func (f *fakeLightning) CancelInvoice(_ context.Context, hash [32]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, hash)
	return nil
}

type fakeChain struct {
	mu        sync.Mutex
	broadcast []string
}

func (f *fakeChain) BroadcastTx(_ context.Context, rawTxHex string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, rawTxHex)
	return nil
}

type fakeStore struct {
	mu             sync.Mutex
	tickets        map[[32]byte]*Ticket
	terminalFailed bool
	fundingSettled bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{tickets: make(map[[32]byte]*Ticket)}
}

func (f *fakeStore) TicketByHash(_ context.Context, hash [32]byte) (*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[hash], nil
}

func (f *fakeStore) MarkTicketPaid(_ context.Context, ticketID uuid.UUID, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.ID == ticketID {
			t.PaidAt = &paidAt
		}
	}
	return nil
}

func (f *fakeStore) MarkTicketSettled(_ context.Context, ticketID uuid.UUID, settledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.ID == ticketID {
			t.SettledAt = &settledAt
		}
	}
	return nil
}

func (f *fakeStore) ResetTicket(_ context.Context, ticketID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.ID == ticketID {
			ClearReservation(t)
		}
	}
	return nil
}

func (f *fakeStore) AcceptedTicketsAwaitingSettlement(_ context.Context, competitionID uuid.UUID) ([]*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Ticket
	for _, t := range f.tickets {
		if t.CompetitionID == competitionID && t.PaidAt != nil && t.SettledAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) CompetitionFundingSettled(_ context.Context, _ uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fundingSettled, nil
}

func (f *fakeStore) CompetitionTerminalFailed(_ context.Context, _ uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminalFailed, nil
}

func TestInvoiceWatcherMarksPaidAndBroadcastsEscrow(t *testing.T) {
	lightning := newFakeLightning()
	chain := &fakeChain{}
	store := newFakeStore()

	competitionID := uuid.New()
	tk := &Ticket{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		PreimageHash:  [32]byte{1, 2, 3},
		EscrowTxHex:   "deadbeef",
	}
	store.tickets[tk.PreimageHash] = tk

	watcher := NewInvoiceWatcher(lightning, chain, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	lightning.updates <- InvoiceUpdate{Hash: tk.PreimageHash, State: InvoiceAccepted, AmtPaidSat: 1000}

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return tk.PaidAt != nil
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		return len(chain.broadcast) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInvoiceWatcherCancelsAndResetsOnTerminalCompetition(t *testing.T) {
	lightning := newFakeLightning()
	chain := &fakeChain{}
	store := newFakeStore()
	store.terminalFailed = true

	competitionID := uuid.New()
	tk := &Ticket{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		PreimageHash:  [32]byte{9, 9, 9},
		UserPubkey:    "someone",
	}
	store.tickets[tk.PreimageHash] = tk

	watcher := NewInvoiceWatcher(lightning, chain, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	lightning.updates <- InvoiceUpdate{Hash: tk.PreimageHash, State: InvoiceAccepted}

	require.Eventually(t, func() bool {
		lightning.mu.Lock()
		defer lightning.mu.Unlock()
		return len(lightning.cancelled) == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return tk.UserPubkey == ""
	}, time.Second, 5*time.Millisecond)
}

func TestSettleCompetitionSettlesAcceptedTickets(t *testing.T) {
	lightning := newFakeLightning()
	chain := &fakeChain{}
	store := newFakeStore()
	store.fundingSettled = true

	competitionID := uuid.New()
	paidAt := time.Now()
	tk := &Ticket{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		PaidAt:        &paidAt,
		Preimage:      secret.New([]byte("0123456789abcdef0123456789abcdef")),
	}
	store.tickets[[32]byte{5}] = tk

	watcher := NewInvoiceWatcher(lightning, chain, store)
	require.NoError(t, watcher.SettleCompetition(context.Background(), competitionID))

	require.NotNil(t, tk.SettledAt)
	require.Len(t, lightning.settled, 1)
}
