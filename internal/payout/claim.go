package payout

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/coordinatorerrs"
)

// ClaimRequest is what a winner submits, spec §4.6: "their ticket id,
// their payout_preimage, their ephemeral_private_key, and a Lightning
// invoice to pay."
type ClaimRequest struct {
	TicketID            uuid.UUID
	PayoutPreimage      []byte
	EphemeralPrivateKey []byte
	Invoice             string
	PaymentHash         [32]byte // decoded from Invoice by the caller
	InvoiceAmountSats   int64    // 0 if the invoice carries no explicit amount
}

// ValidateClaim runs the (a)-(f) validation chain of spec §4.6 against
// a claim, the competition it targets, and the entry it claims to be.
// Every failure is a ValidationError (§7: "Validation (surfaced to
// caller)"); none of them mutate state.
func ValidateClaim(comp *competition.Competition, entry *Entry, req ClaimRequest, totalPoolSats int64) error {
	// (a) competition is Attested but not yet Delta-broadcasted.
	rank := competition.Rank(comp.CurrentState)
	if rank < competition.Rank(competition.StateAttested) || rank >= competition.Rank(competition.StateDeltaBroadcasted) {
		return coordinatorerrs.NewValidation(
			"competition %s is not in a claimable state (current: %s)", comp.ID, comp.CurrentState)
	}

	// (b) entry not already paid-out.
	if entry.PaidOut {
		return coordinatorerrs.NewValidation("entry %s has already been paid out", entry.ID)
	}

	// (c) entry is in the outcome's winners set.
	if entry.Weight <= 0 {
		return coordinatorerrs.NewValidation("entry %s is not a winner under the attested outcome", entry.ID)
	}

	// (d) ephemeral_private_key * G == entry.ephemeral_pubkey.
	priv, pub := btcec.PrivKeyFromBytes(req.EphemeralPrivateKey)
	if priv == nil {
		return coordinatorerrs.NewValidation("invalid ephemeral private key")
	}
	if !pub.IsEqual(entry.EphemeralPubkey) {
		return coordinatorerrs.NewValidation("ephemeral private key does not match entry's pubkey")
	}

	// (e) SHA256(payout_preimage) == entry.payout_hash.
	if sha256.Sum256(req.PayoutPreimage) != entry.PayoutHash {
		return coordinatorerrs.NewValidation("payout preimage does not match entry's payout hash")
	}

	// (f) invoice amount (if specified) equals total_pool * weight / 100.
	expected := expectedAmount(totalPoolSats, entry.Weight)
	if req.InvoiceAmountSats != 0 && req.InvoiceAmountSats != expected {
		return coordinatorerrs.NewValidation(
			"invoice amount %d does not match expected payout %d", req.InvoiceAmountSats, expected)
	}

	return nil
}

func expectedAmount(totalPoolSats int64, weight int) int64 {
	return totalPoolSats * int64(weight) / 100
}

// Lightning is the slice of the consumed Lightning client (§6) a payout
// claim needs to initiate its outbound payment.
type Lightning interface {
	SendPayment(ctx context.Context, invoice string, amountSats int64, timeout time.Duration, feeCapSats int64) error
}

// InitiatePayout validates the claim, sends the bounded Lightning
// payment, and returns the pending Payout row, spec §4.6: "The
// coordinator initiates the Lightning payment with a 60-second,
// 1000-sat-fee-cap budget and records a pending Payout row; the watcher
// later finalizes it."
func InitiatePayout(
	ctx context.Context,
	lightning Lightning,
	comp *competition.Competition,
	entry *Entry,
	req ClaimRequest,
	totalPoolSats int64,
	now time.Time,
) (*Payout, error) {

	if err := ValidateClaim(comp, entry, req, totalPoolSats); err != nil {
		return nil, err
	}

	amount := expectedAmount(totalPoolSats, entry.Weight)

	if err := lightning.SendPayment(ctx, req.Invoice, amount, PaymentTimeout, FeeCapSats); err != nil {
		return nil, err
	}

	log.Infof("initiated payout of %d sats for entry %s", amount, entry.ID)

	return &Payout{
		ID:          uuid.New(),
		EntryID:     entry.ID,
		Invoice:     req.Invoice,
		PaymentHash: req.PaymentHash,
		AmountSats:  amount,
		InitiatedAt: now,
		Status:      StatusPending,
	}, nil
}
