package dlc

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// EscrowWitnessScript builds the 2-of-2 witness script that annotates a
// ticket's escrow output, spec §4.3.4: spendable by the coordinator and
// the reserving user jointly, gated on the invoice's payment hash so a
// signature alone (without the HODL invoice's preimage having been
// accepted) can't move the funds. Generalizes the same
// hash-then-multisig shape lnwallet/script_utils.go uses for its HTLC
// scripts, trimmed to a single non-branching spend path since escrow has
// no timeout/revocation leg of its own — expiry of an unpaid reservation
// is handled by the ticket subsystem, not on-chain.
func EscrowWitnessScript(coordinatorPubkey, userPubkey *btcec.PublicKey, paymentHash [32]byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(paymentHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)

	builder.AddOp(txscript.OP_2)
	builder.AddData(coordinatorPubkey.SerializeCompressed())
	builder.AddData(userPubkey.SerializeCompressed())
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	return builder.Script()
}

// WitnessScriptHash returns the P2WSH output script for a witness script,
// the same helper lnwallet/script_utils.go calls witnessScriptHash.
func WitnessScriptHash(witnessScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)

	scriptHash := btcutil.Hash160(witnessScript)
	builder.AddData(scriptHash)
	return builder.Script()
}
