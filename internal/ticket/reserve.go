package ticket

import (
	"sort"
	"time"

	"github.com/5day4cast/coordinator-core/internal/coordinatorerrs"
)

// Reserve implements the reservation rule of spec §4.5: "rejects if the
// user already holds a reserved-unclaimed ticket (return that one); else
// selects the lexicographically first unreserved-or-stale ticket and
// marks it reserved." The caller is expected to pass the full set of
// tickets for one competition and persist the mutation atomically
// through the store's serialized writer channel (§5); this function
// itself does no I/O so it stays trivially testable.
func Reserve(tickets []*Ticket, userPubkey string, now time.Time) (*Ticket, error) {
	for _, t := range tickets {
		if t.UserPubkey == userPubkey && t.ReservedAt != nil && t.UsedAt == nil {
			return t, nil
		}
	}

	candidates := make([]*Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.IsAvailable(now) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, coordinatorerrs.NewConflict("no tickets available for reservation")
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID.String() < candidates[j].ID.String()
	})

	chosen := candidates[0]
	reservedAt := now
	chosen.ReservedAt = &reservedAt
	chosen.UserPubkey = userPubkey
	chosen.PaidAt = nil
	chosen.SettledAt = nil
	chosen.UsedAt = nil

	return chosen, nil
}

// ClearReservation resets a ticket back to Created, spec §4.5 "If escrow
// construction fails, the reservation is cleared."
func ClearReservation(t *Ticket) {
	t.ReservedAt = nil
	t.UserPubkey = ""
	t.PaymentRequest = ""
	t.EscrowTxHex = ""
	t.PaidAt = nil
}
