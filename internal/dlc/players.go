// Package dlc builds the Discreet Log Contract that backs a competition:
// the payout matrix enumerated from paid entries, the contract parameters
// handed to the MuSig2 engine, and the funding/outcome/split/reclaim
// transactions themselves.
package dlc

import (
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
)

// Player is one paid entry's contribution to the DLC: its ephemeral
// pubkey plus the two 32-byte hashes spec §4.3.1 requires (the
// coordinator-held ticket preimage hash and the player-held payout
// preimage hash).
type Player struct {
	EntryID         uuid.UUID
	EphemeralPubkey *btcec.PublicKey
	TicketHash      [32]byte
	PayoutHash      [32]byte
}

// SortPlayers orders players by entry id ascending. Spec's Design Notes
// "Deterministic ordering" requires this before any permutation is
// enumerated, so the coordinator and the oracle agree on which locking
// point corresponds to which outcome.
func SortPlayers(players []Player) []Player {
	sorted := make([]Player, len(players))
	copy(sorted, players)
	sort.Slice(sorted, func(i, j int) bool {
		return uuidLess(sorted[i].EntryID, sorted[j].EntryID)
	})
	return sorted
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
