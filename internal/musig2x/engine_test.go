package musig2x

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/stretchr/testify/require"
)

func TestRound1IsDeterministic(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	engine := NewLocalEngine(coordinator)

	fundingOutpoint := []byte("funding-outpoint-bytes")
	keys := []SessionKey{FundingSessionKey, OutcomeSessionKey(0), OutcomeSessionKey(1)}

	first, err := engine.Round1(context.Background(), fundingOutpoint, keys)
	require.NoError(t, err)

	second, err := engine.Round1(context.Background(), fundingOutpoint, keys)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.NotEqual(t, first[OutcomeSessionKey(0)], first[OutcomeSessionKey(1)])
}

func TestReconstructAndCompareDetectsMismatch(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	engine := NewLocalEngine(coordinator)

	fundingOutpoint := []byte("outpoint-a")
	keys := []SessionKey{FundingSessionKey}

	persisted, err := engine.Round1(context.Background(), fundingOutpoint, keys)
	require.NoError(t, err)

	require.NoError(t, engine.ReconstructAndCompare(fundingOutpoint, persisted))

	tampered := persisted[FundingSessionKey]
	tampered[0] ^= 0xff
	persisted[FundingSessionKey] = tampered

	require.Error(t, engine.ReconstructAndCompare(fundingOutpoint, persisted))
}

func TestRound1DiffersByFundingOutpoint(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	engine := NewLocalEngine(coordinator)

	keys := []SessionKey{FundingSessionKey}

	a, err := engine.Round1(context.Background(), []byte("outpoint-a"), keys)
	require.NoError(t, err)
	b, err := engine.Round1(context.Background(), []byte("outpoint-b"), keys)
	require.NoError(t, err)

	require.NotEqual(t, a[FundingSessionKey], b[FundingSessionKey])
}

func TestRound2SingleSignerAggregatesWithoutAdaptor(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	engine := NewLocalEngine(coordinator)

	keys := []SessionKey{FundingSessionKey}
	fundingOutpoint := []byte("outpoint-a")

	nonces, err := engine.Round1(context.Background(), fundingOutpoint, keys)
	require.NoError(t, err)

	playerNonces := map[SessionKey]map[string][musig2.PubNonceSize]byte{
		FundingSessionKey: {
			signerID(coordinator.PubKey()): nonces[FundingSessionKey],
		},
	}

	msg := sha256.Sum256([]byte("funding-tx-sighash"))

	results, err := engine.Round2(
		context.Background(),
		fundingOutpoint,
		keys,
		[]*btcec.PublicKey{coordinator.PubKey()},
		playerNonces,
		nil,
		map[SessionKey][32]byte{FundingSessionKey: msg},
		nil,
	)
	require.NoError(t, err)
	require.NotEmpty(t, results[FundingSessionKey])
}

func signerID(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}
