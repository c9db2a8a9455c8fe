package chain

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/build"
)

var log = build.Logger(build.SubsystemChain)

// BTCDClient is a thin adapter over a btcd full node's RPC surface,
// generalizing chainregistry.go's single-backend wiring (this coordinator
// only ever talks to one backend, so the chainCode/chainRegistry
// multi-backend machinery doesn't apply).
type BTCDClient struct {
	rpc           *rpcclient.Client
	coordinatorKey *btcec.PrivateKey
}

// NewBTCDClient wraps an already-connected rpcclient.Client. The
// coordinator's signing key is derived once at startup (outside this
// package, typically from a seed held by internal/config) and handed in
// rather than re-derived per call.
func NewBTCDClient(rpc *rpcclient.Client, coordinatorKey *btcec.PrivateKey) *BTCDClient {
	return &BTCDClient{rpc: rpc, coordinatorKey: coordinatorKey}
}

// CoordinatorPrivateKey returns a copy of the coordinator's key, so a
// caller zeroing it leaves the client's own key intact.
func (c *BTCDClient) CoordinatorPrivateKey(_ context.Context) (*btcec.PrivateKey, error) {
	priv, _ := btcec.PrivKeyFromBytes(c.coordinatorKey.Serialize())
	return priv, nil
}

func (c *BTCDClient) CoordinatorPublicKey(_ context.Context) (*btcec.PublicKey, error) {
	return c.coordinatorKey.PubKey(), nil
}

// BuildPSBT is a minimal single-output assembly: callers that need
// escrow/foreign-UTXO inputs use internal/dlc's BuildFundingPSBT /
// ticket.BuildEscrow directly, which call down into this client only for
// UTXO selection data, not for full PSBT construction.
func (c *BTCDClient) BuildPSBT(
	_ context.Context,
	outputScript []byte,
	amountSats int64,
	_ int64,
) (*psbt.Packet, error) {

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(amountSats, outputScript))
	return psbt.NewFromUnsignedTx(tx)
}

func (c *BTCDClient) SignWithEscrow(_ context.Context, packet *psbt.Packet) (*psbt.Packet, error) {
	return nil, errors.Errorf("SignWithEscrow requires a witness-script signer wired at the call site")
}

func (c *BTCDClient) FinalizeWithEscrow(_ context.Context, packet *psbt.Packet) ([]byte, error) {
	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, errors.Errorf("finalize psbt: %v", err)
	}
	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, errors.Errorf("extract finalized tx: %v", err)
	}
	return serializeTx(tx)
}

func (c *BTCDClient) Broadcast(_ context.Context, rawTx []byte) error {
	tx, err := deserializeTx(rawTx)
	if err != nil {
		return errors.Errorf("deserialize tx: %v", err)
	}
	_, err = c.rpc.SendRawTransaction(tx, false)
	if err != nil {
		return errors.Errorf("send raw transaction: %v", err)
	}
	return nil
}

func (c *BTCDClient) BroadcastTx(ctx context.Context, rawTxHex string) error {
	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return errors.Errorf("decode tx hex: %v", err)
	}
	return c.Broadcast(ctx, raw)
}

func (c *BTCDClient) TxConfirmations(_ context.Context, txid chainhash.Hash) (int32, error) {
	info, err := c.rpc.GetTransaction(&txid)
	if err != nil {
		return 0, errors.Errorf("get transaction %s: %v", txid, err)
	}
	return int32(info.Confirmations), nil
}

func (c *BTCDClient) BlockHeight(_ context.Context) (int32, error) {
	height, err := c.rpc.GetBlockCount()
	if err != nil {
		return 0, errors.Errorf("get block count: %v", err)
	}
	return int32(height), nil
}

func (c *BTCDClient) ConfirmedTimestamp(_ context.Context, txid chainhash.Hash, depth int32) (int64, error) {
	info, err := c.rpc.GetTransaction(&txid)
	if err != nil {
		return 0, errors.Errorf("get transaction %s: %v", txid, err)
	}
	if info.Confirmations < int64(depth) {
		return 0, errors.Errorf("tx %s has %d confirmations, need %d", txid, info.Confirmations, depth)
	}
	blockHash, err := chainhash.NewHashFromStr(info.BlockHash)
	if err != nil {
		return 0, errors.Errorf("parse block hash: %v", err)
	}
	if depth > 1 {
		verbose, err := c.rpc.GetBlockHeaderVerbose(blockHash)
		if err != nil {
			return 0, errors.Errorf("get confirming block header: %v", err)
		}
		blockHash, err = c.rpc.GetBlockHash(int64(verbose.Height) + int64(depth) - 1)
		if err != nil {
			return 0, errors.Errorf("get block hash at depth %d: %v", depth, err)
		}
	}
	header, err := c.rpc.GetBlockHeader(blockHash)
	if err != nil {
		return 0, errors.Errorf("get block header: %v", err)
	}
	return header.Timestamp.Unix(), nil
}

func (c *BTCDClient) EstimateFee(_ context.Context, confTarget uint32) (FeeEstimate, error) {
	result, err := c.rpc.EstimateSmartFee(int64(confTarget), nil)
	if err != nil {
		return FeeEstimate{}, errors.Errorf("estimate smart fee: %v", err)
	}
	if result.FeeRate == nil {
		return FeeEstimate{}, errors.Errorf("backend returned no fee estimate for target %d", confTarget)
	}
	btcPerKvB := *result.FeeRate
	satPerVByte := int64(btcPerKvB * float64(btcutil.SatoshiPerBitcoin) / 1000)
	return FeeEstimate{ConfTarget: confTarget, SatPerVByte: satPerVByte}, nil
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeTx(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
