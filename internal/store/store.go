// Package store defines the Competition Store boundary: durable storage
// for competitions, tickets, entries, and payouts, plus the single
// serialized writer channel spec §5 requires so concurrent state
// transitions on the same competition can never interleave.
package store

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/oracle"
	"github.com/5day4cast/coordinator-core/internal/payout"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

// Entry is the full persisted shape of a competition entry, spec §3
// "Entry". payout.Entry is the narrow projection the claim-validation
// code actually needs; ToPayoutEntry produces it.
type Entry struct {
	ID            uuid.UUID
	CompetitionID uuid.UUID
	TicketID      uuid.UUID

	EphemeralPubkey *btcec.PublicKey

	// EncryptedEphemeralKeyForPlayer and EncryptedPayoutPreimageForPlayer
	// are player-encrypted-to-self copies kept only for the player's own
	// UX recovery; the coordinator cannot decrypt either.
	EncryptedEphemeralKeyForPlayer    string
	EncryptedPayoutPreimageForPlayer string

	PayoutHash [32]byte
	Picks      []oracle.EntryPick

	PublicNonces      map[string][]byte
	PartialSignatures map[string][]byte

	// Cleartext claim artifacts, populated once the player submits a
	// payout claim; nil/empty until then.
	ClaimedEphemeralPrivateKey []byte
	ClaimedPayoutPreimage      []byte
	ClaimedInvoice             string

	PaidOut bool
	Weight  int
}

// ToPayoutEntry projects the fields internal/payout's claim validation
// needs, keeping that package from importing internal/store and creating
// a cycle.
func (e *Entry) ToPayoutEntry() *payout.Entry {
	return &payout.Entry{
		ID:              e.ID,
		CompetitionID:   e.CompetitionID,
		TicketID:        e.TicketID,
		EphemeralPubkey: e.EphemeralPubkey,
		PayoutHash:      e.PayoutHash,
		PaidOut:         e.PaidOut,
		Weight:          e.Weight,
	}
}

// CoordinatorMetadata is the single-row table holding the coordinator's
// own x-only public key, spec §6 "coordinator_metadata (single row,
// x-only pubkey)".
type CoordinatorMetadata struct {
	PublicKey *btcec.PublicKey
}

// Store is the full persistence boundary. It embeds the narrower
// ticket.Store and payout.Store interfaces those packages already define
// so a single *postgres.Store satisfies both without either package
// importing this one.
type Store interface {
	ticket.Store
	payout.Store

	CreateCompetition(ctx context.Context, c *competition.Competition) error
	CompetitionByID(ctx context.Context, id uuid.UUID) (*competition.Competition, error)
	SaveCompetition(ctx context.Context, c *competition.Competition) error
	ListActiveCompetitions(ctx context.Context) ([]*competition.Competition, error)

	CreateTickets(ctx context.Context, tickets []*ticket.Ticket) error
	TicketByID(ctx context.Context, id uuid.UUID) (*ticket.Ticket, error)
	TicketsForCompetition(ctx context.Context, competitionID uuid.UUID) ([]*ticket.Ticket, error)
	SaveTicket(ctx context.Context, t *ticket.Ticket) error

	CreateEntry(ctx context.Context, e *Entry) error
	EntryByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	EntriesForCompetition(ctx context.Context, competitionID uuid.UUID) ([]*Entry, error)
	SaveEntry(ctx context.Context, e *Entry) error

	CreatePayout(ctx context.Context, p *payout.Payout) error

	CoordinatorMetadata(ctx context.Context) (*CoordinatorMetadata, error)
	SaveCoordinatorMetadata(ctx context.Context, m *CoordinatorMetadata) error
}
