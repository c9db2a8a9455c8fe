// Package ticket implements the slot-reservation and escrow subsystem of
// §4.5: minting fixed-size preimage-backed tickets at competition
// creation, reserving them against a HODL invoice, building the escrow
// PSBT that locks a reservation on-chain, and watching the Lightning
// invoice stream to promote tickets through Paid/Settled.
package ticket

import (
	"crypto/sha256"
	"time"

	"github.com/google/uuid"

	"github.com/5day4cast/coordinator-core/internal/secret"
)

// Status is the derived lifecycle stage of a Ticket, spec §3: "Derived
// status: Used > Expired > Settled > Paid > Reserved(<10 min) > Created."
type Status string

const (
	StatusCreated  Status = "created"
	StatusReserved Status = "reserved"
	StatusPaid     Status = "paid"
	StatusSettled  Status = "settled"
	StatusUsed     Status = "used"
	StatusExpired  Status = "expired"
)

// ReservationWindow is how long an unpaid reservation holds a ticket
// before it's treated as stale and eligible for reuse, spec §3
// "Reservations expire after 10 minutes if unpaid."
const ReservationWindow = 10 * time.Minute

// Ticket is one potential competition slot, spec §3 "Ticket".
type Ticket struct {
	ID            uuid.UUID
	CompetitionID uuid.UUID

	// Preimage is the coordinator-held secret whose hash gates both the
	// HODL invoice and the escrow output; never leaves the coordinator
	// except as the revealed settlement value.
	Preimage     secret.Bytes
	PreimageHash [32]byte

	PaymentRequest string
	EscrowTxHex    string

	UserPubkey string // reserving user's Nostr pubkey, hex-encoded

	Expiry time.Time

	ReservedAt *time.Time
	PaidAt     *time.Time
	SettledAt  *time.Time
	UsedAt     *time.Time
}

// Status derives the ticket's lifecycle stage purely from its fields,
// the same "tagged variant recomputed on load" discipline
// internal/competition.DeriveState uses for the competition aggregate.
func (t *Ticket) Status(now time.Time) Status {
	switch {
	case t.UsedAt != nil:
		return StatusUsed
	case t.ReservedAt != nil && now.After(t.Expiry) && t.PaidAt == nil:
		return StatusExpired
	case t.SettledAt != nil:
		return StatusSettled
	case t.PaidAt != nil:
		return StatusPaid
	case t.ReservedAt != nil && now.Sub(*t.ReservedAt) < ReservationWindow:
		return StatusReserved
	case t.ReservedAt != nil:
		return StatusExpired
	default:
		return StatusCreated
	}
}

// IsAvailable reports whether the ticket can be handed out by Reserve:
// never reserved, or reserved-but-stale with no payment in flight.
func (t *Ticket) IsAvailable(now time.Time) bool {
	switch t.Status(now) {
	case StatusCreated, StatusExpired:
		return true
	default:
		return false
	}
}

func hashPreimage(preimage []byte) [32]byte {
	return sha256.Sum256(preimage)
}
