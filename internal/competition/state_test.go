package competition

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestCompetition(t *testing.T) *Competition {
	t.Helper()
	now := time.Now()
	sub := EventSubmission{
		StartObservationDate: now.Add(24 * time.Hour),
		EndObservationDate:   now.Add(48 * time.Hour),
		SigningDate:          now.Add(72 * time.Hour),
		EntryFeeSats:         1000,
		CoordinatorFeePct:    10,
		TotalAllowedEntries:  2,
		NumberOfPlacesWin:    1,
	}
	c := New(uuid.Must(uuid.NewRandom()), sub, now)
	require.NoError(t, c.Validate())
	return c
}

func TestDeriveStateProgression(t *testing.T) {
	c := newTestCompetition(t)
	require.Equal(t, StateCreated, DeriveState(c))

	c.TotalPaidEntries = 1
	require.Equal(t, StateCollectingEntries, DeriveState(c))

	c.TotalPaidEntries = 2
	require.Equal(t, StateAwaitingEscrow, DeriveState(c))

	t1 := time.Now()
	c.Milestones.EscrowConfirmedAt = &t1
	require.Equal(t, StateEscrowConfirmed, DeriveState(c))

	t2 := time.Now()
	c.Milestones.EventCreatedAt = &t2
	require.Equal(t, StateEventCreated, DeriveState(c))

	t3 := time.Now()
	c.Milestones.EntriesSubmittedAt = &t3
	require.Equal(t, StateEntriesSubmitted, DeriveState(c))

	t4 := time.Now()
	c.Milestones.ContractedAt = &t4
	require.Equal(t, StateContractCreated, DeriveState(c))

	c.NoncesSubmitted = 2
	require.Equal(t, StateAwaitingSignatures, DeriveState(c))

	t5 := time.Now()
	c.Milestones.SignedAt = &t5
	require.Equal(t, StateSigningComplete, DeriveState(c))
}

func TestCancelledAndFailedDominate(t *testing.T) {
	c := newTestCompetition(t)
	t1 := time.Now()
	c.Milestones.CompletedAt = &t1
	require.Equal(t, StateCompleted, DeriveState(c))

	t2 := time.Now()
	c.Milestones.FailedAt = &t2
	require.Equal(t, StateFailed, DeriveState(c))
	require.Greater(t, Rank(StateFailed), Rank(StateCompleted))

	t3 := time.Now()
	c.Milestones.CancelledAt = &t3
	require.Equal(t, StateCancelled, DeriveState(c))
}

func TestErrorLogBound(t *testing.T) {
	c := newTestCompetition(t)
	for i := 0; i < MaxTransientErrors; i++ {
		c.AppendError(StateAwaitingEscrow, time.Now(), errTest("boom"))
		require.False(t, c.IsFatalErrorState())
	}
	c.AppendError(StateAwaitingEscrow, time.Now(), errTest("boom"))
	require.True(t, c.IsFatalErrorState())
	require.Equal(t, "boom", c.LastError().Message)
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestValidateRejectsBadPlaces(t *testing.T) {
	c := newTestCompetition(t)
	c.Submission.NumberOfPlacesWin = 6
	require.Error(t, c.Validate())
}

func TestValidateRejectsOverAllocatedEntries(t *testing.T) {
	c := newTestCompetition(t)
	c.TotalEntries = c.Submission.TotalAllowedEntries + 1
	require.Error(t, c.Validate())
}
