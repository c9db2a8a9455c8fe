package dlc

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func makePlayers(t *testing.T, n int) []Player {
	t.Helper()
	players := make([]Player, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		players[i] = Player{
			EntryID:         uuid.Must(uuid.NewRandom()),
			EphemeralPubkey: priv.PubKey(),
		}
	}
	return SortPlayers(players)
}

func TestPayoutMatrixRowsSumTo100(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7} {
		for places := 1; places <= min(5, n); places++ {
			players := makePlayers(t, n)
			outcomes, err := BuildPayoutMatrix(players, places)
			require.NoError(t, err)
			for _, o := range outcomes {
				sum := 0
				for _, w := range o.Weights {
					sum += w
				}
				require.Equal(t, 100, sum, "n=%d places=%d outcome=%d", n, places, o.Index)
			}
		}
	}
}

func TestPayoutMatrixOutcomeCountInvariant(t *testing.T) {
	players := makePlayers(t, 4)
	outcomes, err := BuildPayoutMatrix(players, 2)
	require.NoError(t, err)
	require.Equal(t, PermutationCount(4, 2)+2, len(outcomes))
}

func TestPayoutMatrixAppendsRefundAndExpiry(t *testing.T) {
	players := makePlayers(t, 2)
	outcomes, err := BuildPayoutMatrix(players, 1)
	require.NoError(t, err)
	require.Equal(t, OutcomeRefundAll, outcomes[len(outcomes)-2].Kind)
	require.Equal(t, OutcomeExpiry, outcomes[len(outcomes)-1].Kind)
	require.Equal(t, outcomes[len(outcomes)-2].Weights, outcomes[len(outcomes)-1].Weights)
}

func TestPayoutMatrixRejectsTooManyPlaces(t *testing.T) {
	players := makePlayers(t, 2)
	_, err := BuildPayoutMatrix(players, 3)
	require.Error(t, err)
}
