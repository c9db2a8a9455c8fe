package transition

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator-core/internal/chain"
	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/oracle"
	"github.com/5day4cast/coordinator-core/internal/secret"
	"github.com/5day4cast/coordinator-core/internal/store"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

// fakeLightning satisfies ticket.Lightning with no-op behavior, enough
// to construct a real *ticket.InvoiceWatcher for fundingConfirmed tests.
type fakeLightning struct {
	settled [][]byte
}

func (f *fakeLightning) SubscribeInvoices(context.Context) (<-chan ticket.InvoiceUpdate, <-chan error, error) {
	return make(chan ticket.InvoiceUpdate), make(chan error), nil
}

func (f *fakeLightning) SettleInvoice(_ context.Context, preimage []byte) error {
	f.settled = append(f.settled, preimage)
	return nil
}

func (f *fakeLightning) CancelInvoice(context.Context, [32]byte) error { return nil }

type fakeTicketChain struct{}

func (fakeTicketChain) BroadcastTx(context.Context, string) error { return nil }

func newCoordinatorKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return key
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestDeps(t *testing.T, coordinatorKey *btcec.PrivateKey, mockStore *store.MockStore, mockChain *chain.MockClient, mockOracle *oracle.MockClient) *Deps {
	t.Helper()
	lightning := &fakeLightning{}
	invoices := ticket.NewInvoiceWatcher(lightning, fakeTicketChain{}, mockStore)

	return &Deps{
		Chain:                  mockChain,
		Oracle:                 mockOracle,
		Store:                  mockStore,
		Invoices:               invoices,
		CoordinatorPubkey:      coordinatorKey.PubKey(),
		RelativeLocktimeBlocks: 144,
		FeeRateConfTarget:      6,
		Now:                    fixedNow(time.Unix(1700000000, 0)),
	}
}

func sampleCompetition(id uuid.UUID) *competition.Competition {
	return competition.New(id, competition.EventSubmission{
		Stations:            []string{"KSEA"},
		EntryFeeSats:        10_000,
		CoordinatorFeePct:   5,
		TotalAllowedEntries: 2,
		NumberOfPlacesWin:   1,
	}, time.Unix(1699999000, 0))
}

func rawTxHex(t *testing.T, outpoint wire.OutPoint) string {
	t.Helper()
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	hex, err := serializeTxHex(tx)
	require.NoError(t, err)
	return hex
}

func TestAwaitingEscrowWaitsForConfirmation(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, oracle.NewMockClient())

	comp := sampleCompetition(uuid.New())
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	escrowHex := rawTxHex(t, wire.OutPoint{})
	escrowTxid, err := txidFromRawHex(escrowHex)
	require.NoError(t, err)

	paidAt := time.Unix(1699999500, 0)
	tkt := &ticket.Ticket{
		ID:            uuid.New(),
		CompetitionID: comp.ID,
		Preimage:      secret.New([]byte("preimage-bytes-01234567890123456")),
		EscrowTxHex:   escrowHex,
		PaidAt:        &paidAt,
	}
	require.NoError(t, mockStore.CreateTickets(context.Background(), []*ticket.Ticket{tkt}))

	err = awaitingEscrow(context.Background(), deps, comp)
	require.Error(t, err, "unconfirmed escrow tx must not advance the competition")
	require.Nil(t, comp.Milestones.EscrowConfirmedAt)

	mockChain.Confirmations[escrowTxid] = 1
	require.NoError(t, awaitingEscrow(context.Background(), deps, comp))
	require.NotNil(t, comp.Milestones.EscrowConfirmedAt)
}

func TestEscrowConfirmedRecordsAnnouncement(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	mockOracle := oracle.NewMockClient()
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, mockOracle)

	comp := sampleCompetition(uuid.New())
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	require.NoError(t, escrowConfirmed(context.Background(), deps, comp))
	require.NotNil(t, comp.EventAnnouncement)
	require.NotEmpty(t, comp.EventAnnouncement.EventID)
	require.NotNil(t, comp.Milestones.EventCreatedAt)
}

func TestFundingBroadcastedRequiresConfirmation(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, oracle.NewMockClient())

	comp := sampleCompetition(uuid.New())
	fundingHex := rawTxHex(t, wire.OutPoint{})
	comp.FundingTxHex = fundingHex
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	require.Error(t, fundingBroadcasted(context.Background(), deps, comp))

	txid, err := txidFromRawHex(fundingHex)
	require.NoError(t, err)
	mockChain.Confirmations[txid] = 1

	require.NoError(t, fundingBroadcasted(context.Background(), deps, comp))
	require.NotNil(t, comp.Milestones.FundingConfirmedAt)
}

func TestFundingConfirmedSettlesAcceptedTickets(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, oracle.NewMockClient())

	comp := sampleCompetition(uuid.New())
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	paidAt := time.Unix(1699999500, 0)
	tkt := &ticket.Ticket{
		ID:            uuid.New(),
		CompetitionID: comp.ID,
		Preimage:      secret.New([]byte("preimage-bytes-01234567890123456")),
		PaidAt:        &paidAt,
	}
	require.NoError(t, mockStore.CreateTickets(context.Background(), []*ticket.Ticket{tkt}))

	require.NoError(t, fundingConfirmed(context.Background(), deps, comp))
	require.NotNil(t, comp.Milestones.FundingSettledAt)

	settled, err := mockStore.TicketByID(context.Background(), tkt.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.SettledAt, "invoice watcher should have settled the ticket once funding was marked settled")
}

func TestAwaitingSignaturesNoOpUntilEveryEntrySubmitted(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, oracle.NewMockClient())

	comp := sampleCompetition(uuid.New())
	comp.TotalPaidEntries = 2
	comp.SigsSubmitted = 1
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	require.NoError(t, awaitingSignatures(context.Background(), deps, comp))
	require.Nil(t, comp.Milestones.SignedAt, "must not run Round2 before every paid entry has submitted a signature")
}

func TestDeltaBroadcastedUnifiedCloseWaitsForConfirmation(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, oracle.NewMockClient())

	comp := sampleCompetition(uuid.New())
	closeHex := rawTxHex(t, wire.OutPoint{})
	comp.CloseTxHex = closeHex
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	require.Error(t, deltaBroadcasted(context.Background(), deps, comp))

	txid, err := txidFromRawHex(closeHex)
	require.NoError(t, err)
	mockChain.Confirmations[txid] = 1

	require.NoError(t, deltaBroadcasted(context.Background(), deps, comp))
	require.NotNil(t, comp.Milestones.CompletedAt)
}

func TestAwaitingAttestationBroadcastsExpiryOncePastDeadline(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, oracle.NewMockClient())

	comp := sampleCompetition(uuid.New())
	fundingHex := rawTxHex(t, wire.OutPoint{})
	comp.FundingTxHex = fundingHex
	comp.ExpiryTxHex = fundingHex
	comp.PartialSignatures = map[string][]byte{
		"funding": make([]byte, 64),
	}
	expiry := time.Unix(1600000000, 0)
	comp.EventAnnouncement = &competition.EventAnnouncement{EventID: "evt", Expiry: &expiry}
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	fundingTxid, err := txidFromRawHex(fundingHex)
	require.NoError(t, err)
	mockChain.Confirmations[fundingTxid] = 6
	mockChain.Timestamps[fundingTxid] = expiry.Unix() + 1

	require.NoError(t, awaitingAttestation(context.Background(), deps, comp))
	require.NotNil(t, comp.Milestones.ExpiryBroadcastedAt)
	require.NotNil(t, comp.Milestones.CompletedAt)
	require.Len(t, mockChain.Broadcasted, 1)
}

func TestAwaitingAttestationRecordsAttestation(t *testing.T) {
	mockStore := store.NewMockStore()
	coordinatorKey := newCoordinatorKey(t)
	mockChain := chain.NewMockClient(coordinatorKey)
	mockOracle := oracle.NewMockClient()
	deps := newTestDeps(t, coordinatorKey, mockStore, mockChain, mockOracle)

	comp := sampleCompetition(uuid.New())
	comp.EventAnnouncement = &competition.EventAnnouncement{EventID: "evt-1"}
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	mockOracle.SetAttestation("evt-1", &oracle.Attestation{Scalar: [32]byte{7}, OutcomeIndex: 0})

	require.NoError(t, awaitingAttestation(context.Background(), deps, comp))
	require.NotNil(t, comp.Attestation)
	require.Equal(t, 0, comp.Attestation.OutcomeIndex)
	require.NotNil(t, comp.Milestones.AttestedAt)
}
