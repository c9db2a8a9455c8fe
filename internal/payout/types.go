// Package payout implements winner payout claims and the outbound
// Lightning payment watcher of spec §4.6: validating a claim against
// the signed contract, initiating a time- and fee-bounded payment, and
// reconciling the outcome once the payment subscription reports it.
package payout

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/5day4cast/coordinator-core/internal/build"
)

var log = build.Logger(build.SubsystemPayout)

// PaymentTimeout and FeeCapSats bound every outbound payment attempt,
// spec §4.6 "a 60-second, 1000-sat-fee-cap budget."
const (
	PaymentTimeout = 60 * time.Second
	FeeCapSats     = 1000
)

// Status is a Payout row's outcome, spec §3 "success/failure time,
// failure detail."
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Payout is one outbound Lightning attempt against a winning entry, spec
// §3 "Payout": "One row per outbound Lightning attempt ... Multiple
// attempts may exist per Entry; the latest non-failed one is presented
// as the Entry's current payout state."
type Payout struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	Invoice     string
	PaymentHash [32]byte
	AmountSats  int64

	InitiatedAt time.Time
	FinishedAt  *time.Time

	Status        Status
	FailureReason string
}

// Entry is the slice of the competition's Entry row (spec §3 "Entry")
// that a payout claim needs to validate against: the winner's ephemeral
// identity, their payout-side secret commitment, and whether a previous
// claim already paid them out.
type Entry struct {
	ID              uuid.UUID
	CompetitionID   uuid.UUID
	TicketID        uuid.UUID
	EphemeralPubkey *btcec.PublicKey
	PayoutHash      [32]byte
	PaidOut         bool

	// Weight is this entry's percentage share of the pool under the
	// attested outcome, 0 if the entry did not win. Populated by the
	// caller from the competition's payout matrix (internal/dlc) once
	// the winning outcome index is known.
	Weight int
}
