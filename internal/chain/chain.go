// Package chain defines the consumed Chain Client boundary: deriving the
// coordinator's signing key, building/signing/broadcasting PSBTs, and
// querying confirmation state. Concrete backends live alongside the
// interface; state-machine code only ever depends on Client.
package chain

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// FeeEstimate is a confirmation-target keyed fee rate, sat/vByte.
type FeeEstimate struct {
	ConfTarget uint32
	SatPerVByte int64
}

// Client is the capability set a Chain Client must provide.
type Client interface {
	// CoordinatorPrivateKey derives the coordinator's signing key as a
	// scalar. The returned key never leaves process memory unwrapped;
	// callers are expected to zero it once done (internal/secret).
	CoordinatorPrivateKey(ctx context.Context) (*btcec.PrivateKey, error)

	// CoordinatorPublicKey is the public half, cheap to fetch
	// independently of the private scalar for read-mostly callers.
	CoordinatorPublicKey(ctx context.Context) (*btcec.PublicKey, error)

	// BuildPSBT assembles an unsigned PSBT paying outputScript the given
	// amount. It takes no inputs; escrow and foreign-UTXO inputs are
	// added by internal/dlc's BuildFundingPSBT, not here. The fee rate is
	// passed through to the backend, which may ignore it.
	BuildPSBT(
		ctx context.Context,
		outputScript []byte,
		amountSats int64,
		feeRateSatPerVByte int64,
	) (*psbt.Packet, error)

	// SignWithEscrow partially signs every escrow-witnessed input of a
	// PSBT the coordinator is a party to (2-of-2 ticket escrow, or the
	// funding transaction's coordinator-owned inputs).
	SignWithEscrow(ctx context.Context, packet *psbt.Packet) (*psbt.Packet, error)

	// FinalizeWithEscrow assembles final witnesses once both escrow
	// signatures are present and returns the serialized transaction.
	FinalizeWithEscrow(ctx context.Context, packet *psbt.Packet) ([]byte, error)

	// Broadcast relays a fully-signed serialized transaction.
	Broadcast(ctx context.Context, rawTx []byte) error

	// BroadcastTx is the hex-string convenience form satisfied by the
	// same method ticket.Chain and dlc-driven transitions expect, so a
	// *BTCDClient can be passed directly wherever either of those
	// narrower interfaces is required.
	BroadcastTx(ctx context.Context, rawTxHex string) error

	// TxConfirmations returns confirmation depth, 0 if unconfirmed or
	// unknown to the backend.
	TxConfirmations(ctx context.Context, txid chainhash.Hash) (int32, error)

	// BlockHeight is the backend's current chain tip height.
	BlockHeight(ctx context.Context) (int32, error)

	// ConfirmedTimestamp returns the block timestamp of the block D
	// deep from a transaction's confirming block, counting the
	// confirming block as depth 1 (so a depth equal to the transaction's
	// confirmation count names the chain tip), used to anchor the
	// oracle's attestation-polling countdown to a chain-observed time
	// rather than wall-clock.
	ConfirmedTimestamp(ctx context.Context, txid chainhash.Hash, depth int32) (int64, error)

	// EstimateFee returns the backend's fee estimate for a confirmation
	// target in blocks.
	EstimateFee(ctx context.Context, confTarget uint32) (FeeEstimate, error)
}
