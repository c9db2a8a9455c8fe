package dlc

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/go-errors/errors"
)

// UTXOInput is a coordinator wallet output to be spent into the funding
// transaction.
type UTXOInput struct {
	OutPoint wire.OutPoint
	PkScript []byte
	Value    int64
}

// EscrowInput is a paid ticket's escrow output, spent as a foreign UTXO
// into the funding transaction. Spec §4.3.4: "one foreign-UTXO per paid
// ticket's escrow output", each annotated with the 2-of-2 witness script
// so both the coordinator and the ticket's owner can sign it.
type EscrowInput struct {
	OutPoint      wire.OutPoint
	Value         int64
	WitnessScript []byte
}

// FundingResult is the output of BuildFundingPSBT: the unsigned PSBT plus
// the funding outpoint the coordinator records as soon as the unsigned
// transaction is built, spec §4.3.4 ("The coordinator records
// funding_outpoint from the unsigned PSBT").
type FundingResult struct {
	Packet          *psbt.Packet
	Base64          string
	FundingOutpoint wire.OutPoint
}

// BuildFundingPSBT assembles the unsigned funding PSBT: a single taproot
// output locking the pool amount to the DLC's aggregate key, funded by
// the coordinator's own UTXOs plus one foreign UTXO per paid ticket's
// escrow, spec §4.3.4. Generalizes lnwallet/reservation.go's funding-tx
// assembly (coordinator contribution + counterparty contribution) from a
// single 2-of-2 channel peer to N escrow counterparties.
func BuildFundingPSBT(
	aggregateKey *btcec.PublicKey,
	fundingValueSats int64,
	coordinatorUTXOs []UTXOInput,
	escrowInputs []EscrowInput,
	changeScript []byte,
	feeRateSatPerVByte int64,
) (*FundingResult, error) {

	if len(escrowInputs) == 0 {
		return nil, errors.Errorf("funding tx requires at least one escrow input")
	}

	fundingScript, err := PayToTaprootScript(aggregateKey)
	if err != nil {
		return nil, errors.Errorf("funding output script: %v", err)
	}

	tx := wire.NewMsgTx(2)

	var totalIn int64
	for _, u := range coordinatorUTXOs {
		tx.AddTxIn(wire.NewTxIn(&u.OutPoint, nil, nil))
		totalIn += u.Value
	}
	for _, e := range escrowInputs {
		tx.AddTxIn(wire.NewTxIn(&e.OutPoint, nil, nil))
		totalIn += e.Value
	}

	tx.AddTxOut(wire.NewTxOut(fundingValueSats, fundingScript))

	estVBytes := estimateFundingVBytes(len(tx.TxIn))
	fee := feeRateSatPerVByte * estVBytes
	change := totalIn - fundingValueSats - fee
	if change < 0 {
		return nil, errors.Errorf(
			"insufficient coordinator inputs: have %d need %d (fee %d)",
			totalIn, fundingValueSats, fee)
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
		if err := updater.AddInWitnessUtxo(
			wire.NewTxOut(u.Value, u.PkScript), i,
		); err != nil {
			return nil, errors.Errorf("add coordinator witness utxo %d: %v", i, err)
		}
	}
	offset := len(coordinatorUTXOs)
	for i, e := range escrowInputs {
		idx := offset + i
		escrowScript, err := WitnessScriptHash(e.WitnessScript)
		if err != nil {
			return nil, errors.Errorf("escrow script hash %d: %v", i, err)
		}
		if err := updater.AddInWitnessUtxo(
			wire.NewTxOut(e.Value, escrowScript), idx,
		); err != nil {
			return nil, errors.Errorf("add escrow witness utxo %d: %v", i, err)
		}
		if err := updater.AddInWitnessScript(e.WitnessScript, idx); err != nil {
			return nil, errors.Errorf("add escrow witness script %d: %v", i, err)
		}
	}

	b64, err := packet.B64Encode()
	if err != nil {
		return nil, errors.Errorf("encode psbt: %v", err)
	}

	txid := tx.TxHash()
	return &FundingResult{
		Packet: packet,
		Base64: b64,
		FundingOutpoint: wire.OutPoint{
			Hash:  txid,
			Index: 0,
		},
	}, nil
}

// PayToTaprootScript builds the v1 witness program output script for a
// DLC's aggregate internal key (no script-path commitment: this DLC's
// only spend paths are the adaptor-signed outcome/expiry transactions
// co-signed by the full MuSig2 aggregate key, so a bare key-path output
// is sufficient).
func PayToTaprootScript(aggregateKey *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_1)
	builder.AddData(schnorrSerialize(aggregateKey))
	return builder.Script()
}

func schnorrSerialize(pub *btcec.PublicKey) []byte {
	return pub.SerializeCompressed()[1:]
}

// estimateFundingVBytes is a conservative fixed-weight estimate: ~57.5 vB
// per taproot-keyspend input, ~43 vB per output, ~10.5 vB overhead. Good
// enough for fee budgeting; the coordinator's wallet handles precise
// CPFP/RBF bumping outside this package.
func estimateFundingVBytes(numInputs int) int64 {
	const overhead = 11
	const perInput = 58
	const perOutput = 43
	return int64(overhead + numInputs*perInput + 2*perOutput)
}
