package ticket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMintProducesDistinctPreimagesAndHashes(t *testing.T) {
	competitionID := uuid.New()
	expiry := time.Now().Add(time.Hour)

	tickets, err := Mint(competitionID, 5, expiry)
	require.NoError(t, err)
	require.Len(t, tickets, 5)

	seenHashes := make(map[[32]byte]bool)
	for _, tk := range tickets {
		require.Equal(t, competitionID, tk.CompetitionID)
		require.False(t, tk.Preimage.IsZero())
		require.Equal(t, hashPreimage(tk.Preimage.Reveal()), tk.PreimageHash)
		require.False(t, seenHashes[tk.PreimageHash])
		seenHashes[tk.PreimageHash] = true
	}
}

func TestMintRejectsNonPositiveCount(t *testing.T) {
	_, err := Mint(uuid.New(), 0, time.Now())
	require.Error(t, err)
}
