package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/payout"
)

var _ Store = (*MockStore)(nil)

func TestMockStoreRoundTripsCompetition(t *testing.T) {
	s := NewMockStore()
	comp := competition.New(uuid.New(), competition.EventSubmission{}, time.Now())

	require.NoError(t, s.CreateCompetition(context.Background(), comp))

	got, err := s.CompetitionByID(context.Background(), comp.ID)
	require.NoError(t, err)
	require.Equal(t, comp, got)
}

func TestMockStoreListActiveCompetitionsExcludesTerminal(t *testing.T) {
	s := NewMockStore()
	active := competition.New(uuid.New(), competition.EventSubmission{}, time.Now())
	failed := competition.New(uuid.New(), competition.EventSubmission{}, time.Now())
	failed.CurrentState = competition.StateFailed

	require.NoError(t, s.CreateCompetition(context.Background(), active))
	require.NoError(t, s.CreateCompetition(context.Background(), failed))

	list, err := s.ListActiveCompetitions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, active.ID, list[0].ID)
}

func TestMockStorePayoutLookupByHash(t *testing.T) {
	s := NewMockStore()
	hash := [32]byte{1, 1, 1}
	p := &payout.Payout{ID: uuid.New(), PaymentHash: hash, Status: payout.StatusPending}

	require.NoError(t, s.CreatePayout(context.Background(), p))

	got, err := s.PayoutByPaymentHash(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
}

func TestMockStoreMarkEntryPaidOut(t *testing.T) {
	s := NewMockStore()
	e := &Entry{ID: uuid.New(), CompetitionID: uuid.New()}
	require.NoError(t, s.CreateEntry(context.Background(), e))

	require.NoError(t, s.MarkEntryPaidOut(context.Background(), e.ID))

	got, err := s.EntryByID(context.Background(), e.ID)
	require.NoError(t, err)
	require.True(t, got.PaidOut)
}
