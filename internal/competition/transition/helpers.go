package transition

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/musig2x"
)

// parseParticipantPubkey accepts either a 32-byte x-only (BIP-340) hex
// pubkey, the form ticket.Ticket.UserPubkey and entry ephemeral keys are
// usually carried in, or a standard 33/65-byte compressed/uncompressed
// key, lifting the x-only form to its even-y point the same way
// schnorr-signed outputs always do.
func parseParticipantPubkey(hexStr string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, errors.Errorf("decode pubkey hex %q: %v", hexStr, err)
	}
	switch len(raw) {
	case 32:
		return schnorr.ParsePubKey(raw)
	case 33, 65:
		return btcec.ParsePubKey(raw)
	default:
		return nil, errors.Errorf("pubkey %q has unexpected length %d", hexStr, len(raw))
	}
}

func deserializeTxHex(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, errors.Errorf("decode tx hex: %v", err)
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, errors.Errorf("deserialize tx: %v", err)
	}
	return tx, nil
}

func serializeTxHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", errors.Errorf("serialize tx: %v", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func txidFromRawHex(rawHex string) (chainhash.Hash, error) {
	tx, err := deserializeTxHex(rawHex)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return tx.TxHash(), nil
}

func outpointString(op wire.OutPoint) string {
	return fmt.Sprintf("%s:%d", op.Hash, op.Index)
}

func parseOutpoint(s string) (wire.OutPoint, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return wire.OutPoint{}, errors.Errorf("malformed outpoint %q", s)
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return wire.OutPoint{}, errors.Errorf("parse outpoint txid %q: %v", parts[0], err)
	}
	idx, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return wire.OutPoint{}, errors.Errorf("parse outpoint index %q: %v", parts[1], err)
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(idx)}, nil
}

func wireOutPoint(hash chainhash.Hash, index uint32) wire.OutPoint {
	return wire.OutPoint{Hash: hash, Index: index}
}

// encodeNonces flattens a round-1 nonce map to a JSON-friendly shape,
// session keys as strings, nonces as raw bytes.
func encodeNonces(nonces map[musig2x.SessionKey][musig2.PubNonceSize]byte) map[string][]byte {
	out := make(map[string][]byte, len(nonces))
	for k, n := range nonces {
		raw := make([]byte, musig2.PubNonceSize)
		copy(raw, n[:])
		out[string(k)] = raw
	}
	return out
}

// decodeNonces reverses encodeNonces after a JSON round-trip.
func decodeNonces(raw map[string][]byte) (map[musig2x.SessionKey][musig2.PubNonceSize]byte, error) {
	out := make(map[musig2x.SessionKey][musig2.PubNonceSize]byte, len(raw))
	for k, v := range raw {
		if len(v) != musig2.PubNonceSize {
			return nil, errors.Errorf("nonce for session %s has wrong length %d", k, len(v))
		}
		var n [musig2.PubNonceSize]byte
		copy(n[:], v)
		out[musig2x.SessionKey(k)] = n
	}
	return out, nil
}

// signWitnessScriptSpend signs input 0 of tx against a P2WSH output
// (BIP-143), used for the coordinator's unilateral CSV+CHECKSIG spends of
// the outcome output (close, split-close transactions) and of the
// split-close outputs (split-reclaim transactions).
// The funding/outcome taproot spends use taprootKeySpendSigHash instead;
// this is the plain segwit-v0 counterpart for script-path-only outputs.
func signWitnessScriptSpend(
	tx *wire.MsgTx,
	prevScript []byte,
	prevValue int64,
	witnessScript []byte,
	privKey *btcec.PrivateKey,
) (wire.TxWitness, error) {

	fetcher := txscript.NewCannedPrevOutputFetcher(prevScript, prevValue)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sig, err := txscript.RawTxInWitnessSignature(
		tx, sigHashes, 0, prevValue, witnessScript, txscript.SigHashAll, privKey,
	)
	if err != nil {
		return nil, errors.Errorf("witness script signature: %v", err)
	}
	return wire.TxWitness{sig, witnessScript}, nil
}

// taprootKeySpendSigHash computes the BIP-341 key-path sighash for the
// single-input spend every outcome/expiry transaction makes of the DLC's
// taproot funding output, spec §4.3.4/§4.4.
func taprootKeySpendSigHash(tx *wire.MsgTx, prevScript []byte, prevValue int64) ([32]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(prevScript, prevValue)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	hash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, tx, 0, fetcher)
	if err != nil {
		return [32]byte{}, errors.Errorf("taproot sighash: %v", err)
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}
