package driver

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator-core/internal/chain"
	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/competition/transition"
	"github.com/5day4cast/coordinator-core/internal/oracle"
	"github.com/5day4cast/coordinator-core/internal/store"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

type noopLightning struct{}

func (noopLightning) SubscribeInvoices(context.Context) (<-chan ticket.InvoiceUpdate, <-chan error, error) {
	return make(chan ticket.InvoiceUpdate), make(chan error), nil
}
func (noopLightning) SettleInvoice(context.Context, []byte) error { return nil }
func (noopLightning) CancelInvoice(context.Context, [32]byte) error { return nil }

type noopTicketChain struct{}

func (noopTicketChain) BroadcastTx(context.Context, string) error { return nil }

func newTestDriver(t *testing.T) (*Driver, *store.MockStore) {
	t.Helper()
	mockStore := store.NewMockStore()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	mockChain := chain.NewMockClient(key)

	deps := &transition.Deps{
		Chain:                  mockChain,
		Oracle:                 oracle.NewMockClient(),
		Store:                  mockStore,
		Invoices:               ticket.NewInvoiceWatcher(noopLightning{}, noopTicketChain{}, mockStore),
		CoordinatorPubkey:      key.PubKey(),
		RelativeLocktimeBlocks: 144,
		FeeRateConfTarget:      6,
	}

	d := New(Config{PollInterval: time.Millisecond}, deps, mockStore)
	return d, mockStore
}

func TestTickAdvancesUntilItStalls(t *testing.T) {
	d, mockStore := newTestDriver(t)

	comp := competition.New(uuid.New(), competition.EventSubmission{
		Stations:            []string{"KSEA"},
		EntryFeeSats:        10_000,
		CoordinatorFeePct:   5,
		TotalAllowedEntries: 2,
		NumberOfPlacesWin:   1,
	}, time.Now())
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	require.NoError(t, d.Tick(context.Background()))

	reloaded, err := mockStore.CompetitionByID(context.Background(), comp.ID)
	require.NoError(t, err)
	require.False(t, reloaded.CurrentState.IsTerminal())
}

func TestTickSkipsTerminalCompetitions(t *testing.T) {
	d, mockStore := newTestDriver(t)

	comp := competition.New(uuid.New(), competition.EventSubmission{
		Stations:            []string{"KSEA"},
		EntryFeeSats:        10_000,
		CoordinatorFeePct:   5,
		TotalAllowedEntries: 2,
		NumberOfPlacesWin:   1,
	}, time.Now())
	now := time.Now()
	comp.Milestones.FailedAt = &now
	comp.Refresh()
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	require.NoError(t, d.Tick(context.Background()))
}

func TestStartStopIsIdempotentGuarded(t *testing.T) {
	d, _ := newTestDriver(t)

	require.NoError(t, d.Start())
	require.Error(t, d.Start(), "starting twice must be rejected")

	require.NoError(t, d.Stop())
	require.Error(t, d.Stop(), "stopping twice must be rejected")
}

func TestAdvanceOneLeavesIdleCompetitionInPlace(t *testing.T) {
	d, mockStore := newTestDriver(t)

	comp := competition.New(uuid.New(), competition.EventSubmission{
		Stations:            []string{"KSEA"},
		EntryFeeSats:        10_000,
		CoordinatorFeePct:   5,
		TotalAllowedEntries: 2,
		NumberOfPlacesWin:   1,
	}, time.Now())
	require.NoError(t, mockStore.CreateCompetition(context.Background(), comp))

	d.advanceOne(context.Background(), comp)
	require.False(t, comp.CurrentState.IsTerminal())
	require.Equal(t, competition.StateCreated, comp.CurrentState)
}
