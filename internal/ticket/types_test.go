package ticket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestTicket() *Ticket {
	return &Ticket{
		ID:            uuid.New(),
		CompetitionID: uuid.New(),
		Expiry:        time.Now().Add(time.Hour),
	}
}

func TestStatusCreatedByDefault(t *testing.T) {
	tk := newTestTicket()
	require.Equal(t, StatusCreated, tk.Status(time.Now()))
	require.True(t, tk.IsAvailable(time.Now()))
}

func TestStatusReservedWithinWindow(t *testing.T) {
	tk := newTestTicket()
	now := time.Now()
	reservedAt := now.Add(-5 * time.Minute)
	tk.ReservedAt = &reservedAt

	require.Equal(t, StatusReserved, tk.Status(now))
	require.False(t, tk.IsAvailable(now))
}

func TestStatusExpiredAfterReservationWindow(t *testing.T) {
	tk := newTestTicket()
	now := time.Now()
	reservedAt := now.Add(-15 * time.Minute)
	tk.ReservedAt = &reservedAt

	require.Equal(t, StatusExpired, tk.Status(now))
	require.True(t, tk.IsAvailable(now))
}

func TestStatusPaidOutranksReserved(t *testing.T) {
	tk := newTestTicket()
	now := time.Now()
	reservedAt := now.Add(-15 * time.Minute)
	paidAt := now.Add(-1 * time.Minute)
	tk.ReservedAt = &reservedAt
	tk.PaidAt = &paidAt

	require.Equal(t, StatusPaid, tk.Status(now))
	require.False(t, tk.IsAvailable(now))
}

func TestStatusUsedOutranksEverything(t *testing.T) {
	tk := newTestTicket()
	now := time.Now()
	reservedAt := now.Add(-time.Hour)
	paidAt := now.Add(-time.Hour)
	settledAt := now.Add(-time.Hour)
	usedAt := now.Add(-time.Minute)
	tk.ReservedAt = &reservedAt
	tk.PaidAt = &paidAt
	tk.SettledAt = &settledAt
	tk.UsedAt = &usedAt

	require.Equal(t, StatusUsed, tk.Status(now))
}
