package chain

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

var _ Client = (*MockClient)(nil)
var _ Client = (*BTCDClient)(nil)

func TestMockClientReportsConfiguredConfirmations(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	client := NewMockClient(priv)
	txid := chainhash.Hash{1, 2, 3}
	client.Confirmations[txid] = 6

	confs, err := client.TxConfirmations(context.Background(), txid)
	require.NoError(t, err)
	require.Equal(t, int32(6), confs)
}

func TestMockClientRecordsBroadcasts(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	client := NewMockClient(priv)
	require.NoError(t, client.BroadcastTx(context.Background(), "deadbeef"))
	require.Equal(t, []string{"deadbeef"}, client.Broadcasted)
}

func TestMockClientDerivesCoordinatorKeys(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	client := NewMockClient(priv)
	pub, err := client.CoordinatorPublicKey(context.Background())
	require.NoError(t, err)
	require.True(t, pub.IsEqual(priv.PubKey()))
}
