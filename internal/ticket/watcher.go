package ticket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// InvoiceState mirrors the Lightning invoice lifecycle the coordinator
// reacts to, spec §6 "subscribe-invoices -> stream of {hash, state,
// amt_paid}".
type InvoiceState string

const (
	InvoiceOpen     InvoiceState = "open"
	InvoiceAccepted InvoiceState = "accepted"
	InvoiceSettled  InvoiceState = "settled"
	InvoiceCanceled InvoiceState = "canceled"
)

// InvoiceUpdate is one item off the invoice subscription stream.
type InvoiceUpdate struct {
	Hash      [32]byte
	State     InvoiceState
	AmtPaidSat int64
}

// Lightning is the slice of the consumed Lightning client (§6) the
// invoice watcher needs: settling/canceling HODL invoices and
// subscribing to their state changes.
type Lightning interface {
	SubscribeInvoices(ctx context.Context) (<-chan InvoiceUpdate, <-chan error, error)
	SettleInvoice(ctx context.Context, preimage []byte) error
	CancelInvoice(ctx context.Context, hash [32]byte) error
}

// Chain is the slice of the consumed chain client (§6) needed to
// broadcast a ticket's escrow transaction once its invoice is accepted.
type Chain interface {
	BroadcastTx(ctx context.Context, rawTxHex string) error
}

// Store is the slice of persistence the invoice watcher needs. It is
// satisfied by internal/store's Store, kept narrow here so this package
// doesn't import internal/store and create a cycle.
type Store interface {
	TicketByHash(ctx context.Context, hash [32]byte) (*Ticket, error)
	MarkTicketPaid(ctx context.Context, ticketID uuid.UUID, paidAt time.Time) error
	MarkTicketSettled(ctx context.Context, ticketID uuid.UUID, settledAt time.Time) error
	ResetTicket(ctx context.Context, ticketID uuid.UUID) error
	AcceptedTicketsAwaitingSettlement(ctx context.Context, competitionID uuid.UUID) ([]*Ticket, error)
	CompetitionFundingSettled(ctx context.Context, competitionID uuid.UUID) (bool, error)
	CompetitionTerminalFailed(ctx context.Context, competitionID uuid.UUID) (bool, error)
}

// InvoiceWatcher is the streaming consumer of the Lightning invoice
// subscription, spec §4.5 "Invoice watcher". Lifecycle follows
// htlcswitch/switch.go's atomic-guarded Start/Stop: a single background
// goroutine reading the subscription channel until Stop closes quit.
type InvoiceWatcher struct {
	lightning Lightning
	chain     Chain
	store     Store

	started int32
	stopped int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

func NewInvoiceWatcher(lightning Lightning, chain Chain, store Store) *InvoiceWatcher {
	return &InvoiceWatcher{
		lightning: lightning,
		chain:     chain,
		store:     store,
		quit:      make(chan struct{}),
	}
}

func (w *InvoiceWatcher) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return errors.Errorf("invoice watcher already started")
	}

	updates, errs, err := w.lightning.SubscribeInvoices(ctx)
	if err != nil {
		return errors.Errorf("subscribe invoices: %v", err)
	}

	w.wg.Add(1)
	go w.run(ctx, updates, errs)

	return nil
}

func (w *InvoiceWatcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
		return errors.Errorf("invoice watcher already stopped")
	}
	close(w.quit)
	w.wg.Wait()
	return nil
}

func (w *InvoiceWatcher) run(ctx context.Context, updates <-chan InvoiceUpdate, errs <-chan error) {
	defer w.wg.Done()

	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		case err := <-errs:
			log.Errorf("invoice subscription error: %v", err)
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := w.handleUpdate(ctx, update); err != nil {
				log.Errorf("handle invoice update for %x: %v", update.Hash, err)
			}
		}
	}
}

// handleUpdate implements spec §4.5's per-state reaction: Accepted marks
// the ticket paid and broadcasts its escrow transaction; the
// funding-settled sweep (settling every Accepted invoice for a
// competition once funding_settled_at is set) is driven separately by
// SettleCompetition, called from the state driver's FundingConfirmed
// transition rather than from this per-invoice stream.
func (w *InvoiceWatcher) handleUpdate(ctx context.Context, update InvoiceUpdate) error {
	t, err := w.store.TicketByHash(ctx, update.Hash)
	if err != nil {
		return errors.Errorf("lookup ticket by hash: %v", err)
	}
	if t == nil {
		return errors.Errorf("no ticket found for invoice hash %x", update.Hash)
	}

	switch update.State {
	case InvoiceAccepted:
		now := time.Now()
		if err := w.store.MarkTicketPaid(ctx, t.ID, now); err != nil {
			return errors.Errorf("mark ticket paid: %v", err)
		}
		if t.EscrowTxHex != "" {
			if err := w.chain.BroadcastTx(ctx, t.EscrowTxHex); err != nil {
				return errors.Errorf("broadcast escrow tx: %v", err)
			}
		}

		terminal, err := w.store.CompetitionTerminalFailed(ctx, t.CompetitionID)
		if err != nil {
			return errors.Errorf("check competition terminal state: %v", err)
		}
		if terminal {
			if err := w.lightning.CancelInvoice(ctx, update.Hash); err != nil {
				return errors.Errorf("cancel invoice for terminal competition: %v", err)
			}
			return w.store.ResetTicket(ctx, t.ID)
		}
	}

	return nil
}

// SettleCompetition settles every Accepted-but-unsettled ticket invoice
// for a competition using the stored preimage, spec §4.5: "When the
// competition's funding_settled_at is set, settle every Accepted
// invoice for that competition using the stored preimage and mark
// tickets settled."
func (w *InvoiceWatcher) SettleCompetition(ctx context.Context, competitionID uuid.UUID) error {
	settled, err := w.store.CompetitionFundingSettled(ctx, competitionID)
	if err != nil {
		return errors.Errorf("check funding settled: %v", err)
	}
	if !settled {
		return errors.Errorf("competition %s has not reached funding_settled_at", competitionID)
	}

	tickets, err := w.store.AcceptedTicketsAwaitingSettlement(ctx, competitionID)
	if err != nil {
		return errors.Errorf("load accepted tickets: %v", err)
	}

	now := time.Now()
	for _, t := range tickets {
		if err := w.lightning.SettleInvoice(ctx, t.Preimage.Reveal()); err != nil {
			return errors.Errorf("settle invoice for ticket %s: %v", t.ID, err)
		}
		if err := w.store.MarkTicketSettled(ctx, t.ID, now); err != nil {
			return errors.Errorf("mark ticket settled: %v", err)
		}
	}

	return nil
}
