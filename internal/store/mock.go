package store

import (
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/payout"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

// MockStore is an in-memory Store for driver/transition tests that
// shouldn't need a live postgres instance.
type MockStore struct {
	mu sync.Mutex

	competitions map[uuid.UUID]*competition.Competition
	tickets      map[uuid.UUID]*ticket.Ticket
	entries      map[uuid.UUID]*Entry
	payouts      map[uuid.UUID]*payout.Payout
	metadata     *CoordinatorMetadata
}

func NewMockStore() *MockStore {
	return &MockStore{
		competitions: make(map[uuid.UUID]*competition.Competition),
		tickets:      make(map[uuid.UUID]*ticket.Ticket),
		entries:      make(map[uuid.UUID]*Entry),
		payouts:      make(map[uuid.UUID]*payout.Payout),
	}
}

func (s *MockStore) CreateCompetition(_ context.Context, c *competition.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitions[c.ID] = c
	return nil
}

func (s *MockStore) CompetitionByID(_ context.Context, id uuid.UUID) (*competition.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.competitions[id], nil
}

func (s *MockStore) SaveCompetition(_ context.Context, c *competition.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitions[c.ID] = c
	return nil
}

func (s *MockStore) ListActiveCompetitions(_ context.Context) ([]*competition.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*competition.Competition
	for _, c := range s.competitions {
		if !c.CurrentState.IsTerminal() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MockStore) CreateTickets(_ context.Context, tickets []*ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return nil
}

func (s *MockStore) TicketByID(_ context.Context, id uuid.UUID) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets[id], nil
}

func (s *MockStore) TicketByHash(_ context.Context, hash [32]byte) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.PreimageHash == hash {
			return t, nil
		}
	}
	return nil, nil
}

func (s *MockStore) TicketsForCompetition(_ context.Context, competitionID uuid.UUID) ([]*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ticket.Ticket
	for _, t := range s.tickets {
		if t.CompetitionID == competitionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MockStore) SaveTicket(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

func (s *MockStore) MarkTicketPaid(_ context.Context, ticketID uuid.UUID, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return errors.Errorf("unknown ticket %s", ticketID)
	}
	t.PaidAt = &paidAt
	return nil
}

func (s *MockStore) MarkTicketSettled(_ context.Context, ticketID uuid.UUID, settledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return errors.Errorf("unknown ticket %s", ticketID)
	}
	t.SettledAt = &settledAt
	return nil
}

func (s *MockStore) ResetTicket(_ context.Context, ticketID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return errors.Errorf("unknown ticket %s", ticketID)
	}
	ticket.ClearReservation(t)
	return nil
}

func (s *MockStore) AcceptedTicketsAwaitingSettlement(_ context.Context, competitionID uuid.UUID) ([]*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ticket.Ticket
	for _, t := range s.tickets {
		if t.CompetitionID == competitionID && t.PaidAt != nil && t.SettledAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MockStore) CompetitionFundingSettled(_ context.Context, competitionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[competitionID]
	if !ok {
		return false, errors.Errorf("unknown competition %s", competitionID)
	}
	return c.Milestones.FundingSettledAt != nil, nil
}

func (s *MockStore) CompetitionTerminalFailed(_ context.Context, competitionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[competitionID]
	if !ok {
		return false, errors.Errorf("unknown competition %s", competitionID)
	}
	return c.CurrentState == competition.StateFailed || c.CurrentState == competition.StateCancelled, nil
}

func (s *MockStore) CreateEntry(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *MockStore) EntryByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id], nil
}

func (s *MockStore) EntriesForCompetition(_ context.Context, competitionID uuid.UUID) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.CompetitionID == competitionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MockStore) SaveEntry(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *MockStore) CreatePayout(_ context.Context, p *payout.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts[p.ID] = p
	return nil
}

func (s *MockStore) PayoutByPaymentHash(_ context.Context, hash [32]byte) (*payout.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payouts {
		if p.PaymentHash == hash {
			return p, nil
		}
	}
	return nil, nil
}

func (s *MockStore) MarkPayoutSucceeded(_ context.Context, payoutID uuid.UUID, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return errors.Errorf("unknown payout %s", payoutID)
	}
	p.Status = payout.StatusSucceeded
	p.FinishedAt = &finishedAt
	return nil
}

func (s *MockStore) MarkPayoutFailed(_ context.Context, payoutID uuid.UUID, finishedAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return errors.Errorf("unknown payout %s", payoutID)
	}
	p.Status = payout.StatusFailed
	p.FinishedAt = &finishedAt
	p.FailureReason = reason
	return nil
}

func (s *MockStore) MarkEntryPaidOut(_ context.Context, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return errors.Errorf("unknown entry %s", entryID)
	}
	e.PaidOut = true
	return nil
}

func (s *MockStore) CoordinatorMetadata(context.Context) (*CoordinatorMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata, nil
}

func (s *MockStore) SaveCoordinatorMetadata(_ context.Context, m *CoordinatorMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = m
	return nil
}
