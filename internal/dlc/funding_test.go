package dlc

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestBuildFundingPSBTProducesExpectedOutpoint(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	escrow := EscrowInput{
		OutPoint: wire.OutPoint{Index: 0},
		Value:    1100,
	}
	script, err := EscrowWitnessScript(coordinator.PubKey(), coordinator.PubKey(), [32]byte{1})
	require.NoError(t, err)
	escrow.WitnessScript = script

	result, err := BuildFundingPSBT(
		coordinator.PubKey(),
		1000,
		nil,
		[]EscrowInput{escrow},
		nil,
		2,
	)
	require.NoError(t, err)
	require.NotEmpty(t, result.Base64)
	require.Equal(t, uint32(0), result.FundingOutpoint.Index)
}

func TestBuildFundingPSBTRejectsNoEscrow(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	_, err = BuildFundingPSBT(coordinator.PubKey(), 1000, nil, nil, nil, 2)
	require.Error(t, err)
}

func TestBuildOutcomeAndCloseTx(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	fundingOutpoint := wire.OutPoint{Index: 0}
	outcomeTx, err := BuildOutcomeTx(fundingOutpoint, 10_000, coordinator.PubKey(), 144, 2)
	require.NoError(t, err)
	require.Len(t, outcomeTx.TxOut, 1)

	outcomeOutpoint := wire.OutPoint{Hash: outcomeTx.TxHash(), Index: 0}
	closeTx, err := BuildCloseTx(outcomeOutpoint, outcomeTx.TxOut[0].Value, []byte{0x00}, 144, 2)
	require.NoError(t, err)
	require.Len(t, closeTx.TxOut, 1)
	require.Less(t, closeTx.TxOut[0].Value, outcomeTx.TxOut[0].Value)
}

func TestBuildSplitCloseTxSeparatesUnpaidWinners(t *testing.T) {
	coordinator, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	players := makePlayers(t, 2)
	splits := []WinnerSplit{
		{Player: players[0], Weight: 60, Amount: 6000, PaidOut: true},
		{Player: players[1], Weight: 40, Amount: 4000, PaidOut: false},
	}

	outcomeOutpoint := wire.OutPoint{Index: 0}
	tx, unpaidIdx, err := BuildSplitCloseTx(
		outcomeOutpoint, splits, coordinator.PubKey(), []byte{0x00}, 144, 2)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 2) // one unpaid split output + one coordinator aggregate output
	require.Contains(t, unpaidIdx, 1)
	require.NotContains(t, unpaidIdx, 0)
}
