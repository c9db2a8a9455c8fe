// Package competition models the Competition aggregate: its durable
// timestamps, on-chain/MuSig2/oracle artifacts, and the pure function that
// derives its current State from that data (spec §3, Design Notes "State
// representation").
package competition

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
)

// State is the tagged variant the Design Notes recommend storing alongside
// the timestamps, recomputed from them on every load so that state and
// data can never drift apart.
type State string

const (
	StateCreated             State = "created"
	StateCollectingEntries   State = "collecting_entries"
	StateAwaitingEscrow      State = "awaiting_escrow"
	StateEscrowConfirmed     State = "escrow_confirmed"
	StateEventCreated        State = "event_created"
	StateEntriesSubmitted    State = "entries_submitted"
	StateContractCreated     State = "contract_created"
	StateAwaitingSignatures  State = "awaiting_signatures"
	StateSigningComplete     State = "signing_complete"
	StateFundingBroadcasted  State = "funding_broadcasted"
	StateFundingConfirmed    State = "funding_confirmed"
	StateFundingSettled      State = "funding_settled"
	StateAwaitingAttestation State = "awaiting_attestation"
	StateAttested            State = "attested"
	StateOutcomeBroadcasted  State = "outcome_broadcasted"
	StateExpiryBroadcasted   State = "expiry_broadcasted"
	StateDeltaBroadcasted    State = "delta_broadcasted"
	StateCompleted           State = "completed"
	StateCancelled           State = "cancelled"
	StateFailed              State = "failed"
)

// order gives every non-terminal state a strictly increasing rank so tests
// can assert a transition never moves a competition backwards (spec §8).
var order = map[State]int{
	StateCreated:             0,
	StateCollectingEntries:   1,
	StateAwaitingEscrow:      2,
	StateEscrowConfirmed:     3,
	StateEventCreated:        4,
	StateEntriesSubmitted:    5,
	StateContractCreated:     6,
	StateAwaitingSignatures:  7,
	StateSigningComplete:     8,
	StateFundingBroadcasted:  9,
	StateFundingConfirmed:    10,
	StateFundingSettled:      11,
	StateAwaitingAttestation: 12,
	StateAttested:            13,
	StateOutcomeBroadcasted:  14,
	StateExpiryBroadcasted:   14, // alternate path out of AwaitingAttestation, same rank as OutcomeBroadcasted
	StateDeltaBroadcasted:    15,
	StateCompleted:           16,
}

// Rank returns a state's position in the forward progression, or 1<<30
// for the dominating terminal states (Cancelled/Failed), which compare
// greater than everything per spec §8 ("except for Cancelled/Failed which
// dominate all").
func Rank(s State) int {
	if s == StateCancelled || s == StateFailed {
		return 1 << 30
	}
	return order[s]
}

// IsTerminal reports whether a state is one the driver skips entirely.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Milestones holds one set-once timestamp per §3 state transition. A
// pointer is nil until that transition fires; DeriveState reads these (and
// the artifact fields on Competition) to compute the current State.
type Milestones struct {
	CreatedAt             time.Time
	EscrowConfirmedAt      *time.Time
	EventCreatedAt         *time.Time
	EntriesSubmittedAt     *time.Time
	ContractedAt           *time.Time
	SignedAt               *time.Time
	FundingBroadcastedAt   *time.Time
	FundingConfirmedAt     *time.Time
	FundingSettledAt       *time.Time
	AttestedAt             *time.Time
	OutcomeBroadcastedAt   *time.Time
	ExpiryBroadcastedAt    *time.Time
	DeltaBroadcastedAt     *time.Time
	CompletedAt            *time.Time
	CancelledAt            *time.Time
	FailedAt               *time.Time
}

// EventSubmission is the admin-provided shape of a competition, carried
// into the oracle's create_event call.
type EventSubmission struct {
	Stations                []string
	StartObservationDate    time.Time
	EndObservationDate      time.Time
	SigningDate             time.Time
	EntryFeeSats            int64
	CoordinatorFeePct       float64
	TotalAllowedEntries     int
	NumberOfPlacesWin       int
}

// TotalPoolSats is the funding value before coordinator fee deduction:
// allowed entries times the fee-inclusive invoice amount, i.e. what every
// ticket actually pays in. Spec §3 "total pool".
func (e EventSubmission) TotalPoolSats() int64 {
	perEntry := InvoiceAmountSats(e.EntryFeeSats, e.CoordinatorFeePct)
	return perEntry * int64(e.TotalAllowedEntries)
}

// InvoiceAmountSats is entry_fee * (1 + coordinator_fee_pct/100), spec §4.5.
func InvoiceAmountSats(entryFeeSats int64, coordinatorFeePct float64) int64 {
	return int64(float64(entryFeeSats) * (1 + coordinatorFeePct/100))
}

// TransientError is a soft-recovered failure appended to Competition.Errors
// (escrow-confirmation poll, funding-confirmation poll, attestation
// fetch). More than MaxTransientErrors of these is fatal, spec §3/§7.
type TransientError struct {
	OccurredAt time.Time
	State      State
	Message    string
}

// MaxTransientErrors is the bound past which a competition is failed with
// the last error, spec §3 ("An error log bounded to 5 entries ... is
// treated as fatal").
const MaxTransientErrors = 5

// EventAnnouncement is the oracle's response to create_event: one locking
// point per outcome index, in the same order the coordinator's
// PayoutMatrix enumerates outcomes (spec §4.3.2, Design Notes "Deterministic
// ordering").
type EventAnnouncement struct {
	EventID       string
	LockingPoints []*btcec.PublicKey
	Expiry        *time.Time
}

// Attestation is what the oracle eventually reveals: a scalar s such that
// s*G equals exactly one locking point.
type Attestation struct {
	Scalar       [32]byte
	OutcomeIndex int
}

// Competition is the aggregate root: one time-ordered UUID, the admin's
// event submission, running counts, on-chain/MuSig2/oracle artifacts, the
// milestone vector, and a bounded transient-error log.
type Competition struct {
	ID uuid.UUID

	Submission EventSubmission

	TotalEntries     int
	TotalPaidEntries int
	NoncesSubmitted  int
	SigsSubmitted    int
	PaidOutEntries   int

	// On-chain artifacts.
	FundingPSBTBase64 string
	FundingOutpoint   string // "txid:vout", set once the funding PSBT is built
	FundingTxHex      string
	OutcomeTxHex      string
	ExpiryTxHex       string
	CloseTxHex        string // unified close tx, only set if every winner was paid out before the delta window
	SplitCloseTxHex   string // per-winner split-close tx, only set if some winners hadn't been paid out yet
	// SplitOutputIndex maps an unpaid winner's entry ID (string form) to its
	// output index in SplitCloseTxHex, since every split-close output shares
	// the same script and only the index identifies which winner it is.
	SplitOutputIndex map[string]int

	// MuSig2 artifacts. CoordinatorPublicNonces and PublicNonces are the
	// round-1 output, the coordinator's own nonces and a cache of every
	// player's, both keyed by session key (see musig2x.SessionKey); the
	// per-entry copies on Entry.PublicNonces remain authoritative, this
	// is a read-side convenience so a signing pass doesn't need to
	// rejoin every entry just to check submission counts.
	CoordinatorPublicNonces []byte
	PublicNonces            map[string][]byte
	// AggregatedNonces caches each session's combined round-1 nonce,
	// keyed by session key, for audit/debugging; Round2 recomputes it
	// from the player nonces regardless.
	AggregatedNonces map[string][]byte
	// PartialSignatures holds each session's fully aggregated signature
	// once Round2 completes, keyed by session key. For outcome sessions
	// this is an adaptor presignature awaiting completion with the
	// oracle's attestation scalar; for the funding session it's already
	// a plain, final signature over the Expiry transaction.
	PartialSignatures map[string][]byte
	// SignedContractHex is the hex-encoded final signature for the
	// funding session specifically (the Expiry transaction's spend
	// authorization), duplicated out of PartialSignatures for callers
	// that only care about the expiry path.
	SignedContractHex string

	// Oracle artifacts.
	EventAnnouncement *EventAnnouncement
	Attestation       *Attestation

	Milestones Milestones

	Errors []TransientError

	CurrentState State
}

// New constructs a Competition at StateCreated with CreatedAt set to now.
func New(id uuid.UUID, submission EventSubmission, now time.Time) *Competition {
	return &Competition{
		ID:           id,
		Submission:   submission,
		PublicNonces: make(map[string][]byte),
		Milestones:   Milestones{CreatedAt: now},
		CurrentState: StateCreated,
	}
}

// AppendError records a transient failure. Once the log exceeds
// MaxTransientErrors, the caller (transition.Advance) fails the
// competition with the last error; AppendError itself never mutates state.
func (c *Competition) AppendError(state State, now time.Time, err error) {
	c.Errors = append(c.Errors, TransientError{
		OccurredAt: now,
		State:      state,
		Message:    err.Error(),
	})
}

// ClearErrors resets the transient error log, called on every successful
// transition so a run of soft failures doesn't carry over into a state
// where they no longer apply.
func (c *Competition) ClearErrors() {
	c.Errors = nil
}

// IsFatalErrorState reports whether the error log has exceeded the bound.
func (c *Competition) IsFatalErrorState() bool {
	return len(c.Errors) > MaxTransientErrors
}

// LastError returns the most recent transient error, or nil.
func (c *Competition) LastError() *TransientError {
	if len(c.Errors) == 0 {
		return nil
	}
	return &c.Errors[len(c.Errors)-1]
}
