package musig2x

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/go-errors/errors"
)

// AggregateKey computes the MuSig2 aggregate public key for the funding
// output, sorting signers first so every participant derives the same
// key regardless of the order they were given in.
func AggregateKey(signers []*btcec.PublicKey) (*btcec.PublicKey, error) {
	aggKey, err := musig2.AggregateKeys(signers, true)
	if err != nil {
		return nil, errors.Errorf("aggregate keys: %v", err)
	}
	return aggKey.FinalKey, nil
}

// EncodePartialSignature serializes a partial signature's S scalar to its
// raw 32-byte form for storage on an Entry, spec §4.4's per-entry
// partial_signatures map.
func EncodePartialSignature(sig *musig2.PartialSignature) []byte {
	out := sig.S.Bytes()
	return out[:]
}

// DecodePartialSignature parses a 32-byte partial signature scalar back
// into the musig2 type Round2 expects.
func DecodePartialSignature(raw []byte) (*musig2.PartialSignature, error) {
	if len(raw) != 32 {
		return nil, errors.Errorf("partial signature must be 32 bytes, got %d", len(raw))
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(raw); overflow {
		return nil, errors.Errorf("partial signature scalar overflows field")
	}
	return &musig2.PartialSignature{S: &s}, nil
}
