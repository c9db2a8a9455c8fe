package ticket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestReservePicksLexicographicallyFirstFree(t *testing.T) {
	now := time.Now()
	a := &Ticket{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Expiry: now.Add(time.Hour)}
	b := &Ticket{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Expiry: now.Add(time.Hour)}
	tickets := []*Ticket{a, b}

	chosen, err := Reserve(tickets, "user-pubkey", now)
	require.NoError(t, err)
	require.Equal(t, b.ID, chosen.ID)
	require.NotNil(t, chosen.ReservedAt)
	require.Equal(t, "user-pubkey", chosen.UserPubkey)
}

func TestReserveReturnsExistingUnclaimedReservation(t *testing.T) {
	now := time.Now()
	reservedAt := now.Add(-2 * time.Minute)
	existing := &Ticket{
		ID:         uuid.New(),
		UserPubkey: "user-pubkey",
		ReservedAt: &reservedAt,
		Expiry:     now.Add(time.Hour),
	}
	other := &Ticket{ID: uuid.New(), Expiry: now.Add(time.Hour)}

	chosen, err := Reserve([]*Ticket{existing, other}, "user-pubkey", now)
	require.NoError(t, err)
	require.Equal(t, existing.ID, chosen.ID)
}

func TestReserveReusesStaleReservation(t *testing.T) {
	now := time.Now()
	staleAt := now.Add(-20 * time.Minute)
	stale := &Ticket{ID: uuid.New(), ReservedAt: &staleAt, UserPubkey: "other-user", Expiry: now.Add(time.Hour)}

	chosen, err := Reserve([]*Ticket{stale}, "new-user", now)
	require.NoError(t, err)
	require.Equal(t, stale.ID, chosen.ID)
	require.Equal(t, "new-user", chosen.UserPubkey)
}

func TestReserveRejectsWhenNoneAvailable(t *testing.T) {
	now := time.Now()
	reservedAt := now.Add(-1 * time.Minute)
	reserved := &Ticket{ID: uuid.New(), ReservedAt: &reservedAt, UserPubkey: "someone-else", Expiry: now.Add(time.Hour)}

	_, err := Reserve([]*Ticket{reserved}, "new-user", now)
	require.Error(t, err)
}

func TestClearReservationResetsFields(t *testing.T) {
	now := time.Now()
	t1 := &Ticket{ReservedAt: &now, UserPubkey: "u", PaymentRequest: "lnbc1", EscrowTxHex: "deadbeef"}
	ClearReservation(t1)
	require.Nil(t, t1.ReservedAt)
	require.Empty(t, t1.UserPubkey)
	require.Empty(t, t1.PaymentRequest)
	require.Empty(t, t1.EscrowTxHex)
}
