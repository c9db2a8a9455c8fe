package ticket

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/dlc"
)

// EscrowResult is the unsigned, coordinator-funded escrow PSBT for one
// reserved ticket, plus the outpoint it will later be spent from as a
// foreign UTXO into the competition's funding transaction.
type EscrowResult struct {
	Packet        *psbt.Packet
	Base64        string
	Outpoint      wire.OutPoint
	WitnessScript []byte
}

// BuildEscrow assembles the 2-of-2 escrow output for a freshly-reserved
// ticket, spec §4.5: "the ticket receives an escrow PSBT signed by the
// coordinator that spends coordinator UTXOs to a 2-of-2 (coordinator,
// user) output locked to the invoice's payment_hash." The witness
// script and P2WSH derivation are shared with the funding transaction's
// escrow-input handling in internal/dlc so the same bytes validate on
// both sides of the spend.
func BuildEscrow(
	coordinatorPubkey, userPubkey *btcec.PublicKey,
	paymentHash [32]byte,
	amountSats int64,
	coordinatorUTXOs []dlc.UTXOInput,
	changeScript []byte,
	feeRateSatPerVByte int64,
) (*EscrowResult, error) {

	if len(coordinatorUTXOs) == 0 {
		return nil, errors.Errorf("escrow construction requires at least one coordinator UTXO")
	}

	witnessScript, err := dlc.EscrowWitnessScript(coordinatorPubkey, userPubkey, paymentHash)
	if err != nil {
		return nil, errors.Errorf("escrow witness script: %v", err)
	}
	escrowScript, err := dlc.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, errors.Errorf("escrow p2wsh: %v", err)
	}

	tx := wire.NewMsgTx(2)
	var totalIn int64
	for _, u := range coordinatorUTXOs {
		tx.AddTxIn(wire.NewTxIn(&u.OutPoint, nil, nil))
		totalIn += u.Value
	}
	tx.AddTxOut(wire.NewTxOut(amountSats, escrowScript))

	const overhead = 11
	const perInput = 68
	const perOutput = 43
	estVBytes := int64(overhead + len(coordinatorUTXOs)*perInput + 2*perOutput)
	fee := feeRateSatPerVByte * estVBytes
	change := totalIn - amountSats - fee
	if change < 0 {
		return nil, errors.Errorf(
			"insufficient coordinator inputs for escrow: have %d need %d (fee %d)",
			totalIn, amountSats, fee)
	}
	if change > 0 && changeScript != nil {
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, errors.Errorf("psbt.NewFromUnsignedTx: %v", err)
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, errors.Errorf("psbt.NewUpdater: %v", err)
	}
	for i, u := range coordinatorUTXOs {
		if err := updater.AddInWitnessUtxo(wire.NewTxOut(u.Value, u.PkScript), i); err != nil {
			return nil, errors.Errorf("add coordinator witness utxo %d: %v", i, err)
		}
	}

	b64, err := packet.B64Encode()
	if err != nil {
		return nil, errors.Errorf("encode escrow psbt: %v", err)
	}

	return &EscrowResult{
		Packet:        packet,
		Base64:        b64,
		Outpoint:      wire.OutPoint{Hash: tx.TxHash(), Index: 0},
		WitnessScript: witnessScript,
	}, nil
}
