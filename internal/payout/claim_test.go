package payout

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator-core/internal/competition"
)

func newAttestedCompetition() *competition.Competition {
	comp := competition.New(uuid.New(), competition.EventSubmission{
		NumberOfPlacesWin:    1,
		TotalAllowedEntries:  2,
		EntryFeeSats:         1000,
		StartObservationDate: time.Now(),
		EndObservationDate:   time.Now().Add(time.Hour),
		SigningDate:          time.Now().Add(2 * time.Hour),
	}, time.Now())
	comp.CurrentState = competition.StateAttested
	return comp
}

func validClaimSetup(t *testing.T) (*competition.Competition, *Entry, ClaimRequest, []byte) {
	comp := newAttestedCompetition()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	preimage := []byte("this-is-a-32-byte-payout-preimag")
	hash := sha256.Sum256(preimage)

	entry := &Entry{
		ID:              uuid.New(),
		CompetitionID:   comp.ID,
		EphemeralPubkey: priv.PubKey(),
		PayoutHash:      hash,
		Weight:          60,
	}

	req := ClaimRequest{
		TicketID:            uuid.New(),
		PayoutPreimage:      preimage,
		EphemeralPrivateKey: priv.Serialize(),
		Invoice:             "lnbc1...",
	}

	return comp, entry, req, preimage
}

func TestValidateClaimAcceptsWellFormedClaim(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	require.NoError(t, ValidateClaim(comp, entry, req, 10_000))
}

func TestValidateClaimRejectsWrongCompetitionState(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	comp.CurrentState = competition.StateDeltaBroadcasted
	require.Error(t, ValidateClaim(comp, entry, req, 10_000))
}

func TestValidateClaimRejectsAlreadyPaidOut(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	entry.PaidOut = true
	require.Error(t, ValidateClaim(comp, entry, req, 10_000))
}

func TestValidateClaimRejectsNonWinner(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	entry.Weight = 0
	require.Error(t, ValidateClaim(comp, entry, req, 10_000))
}

func TestValidateClaimRejectsWrongEphemeralKey(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	req.EphemeralPrivateKey = other.Serialize()
	require.Error(t, ValidateClaim(comp, entry, req, 10_000))
}

func TestValidateClaimRejectsWrongPreimage(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	req.PayoutPreimage = []byte("not-the-right-preimage-at-all!!")
	require.Error(t, ValidateClaim(comp, entry, req, 10_000))
}

func TestValidateClaimRejectsMismatchedInvoiceAmount(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	req.InvoiceAmountSats = 1
	require.Error(t, ValidateClaim(comp, entry, req, 10_000))
}

type fakeLightning struct {
	sent bool
}

func (f *fakeLightning) SendPayment(_ context.Context, _ string, _ int64, _ time.Duration, _ int64) error {
	f.sent = true
	return nil
}

func TestInitiatePayoutSendsExpectedAmount(t *testing.T) {
	comp, entry, req, _ := validClaimSetup(t)
	lightning := &fakeLightning{}

	p, err := InitiatePayout(context.Background(), lightning, comp, entry, req, 10_000, time.Now())
	require.NoError(t, err)
	require.True(t, lightning.sent)
	require.Equal(t, int64(6000), p.AmountSats)
	require.Equal(t, StatusPending, p.Status)
}
