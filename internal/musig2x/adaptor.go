package musig2x

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/go-errors/errors"
)

// CompleteSignature turns a MuSig2 pre-signature produced against an
// adaptor point into a valid Schnorr signature once the oracle's
// attestation reveals the adaptor secret, spec §4.2 "Attested": "complete
// the adaptor signature using the revealed scalar." The R component is
// unchanged; s is tweaked by the secret scalar the adaptor point committed
// to, same as any other adaptor-signature completion.
func CompleteSignature(presig []byte, adaptorSecret [32]byte) ([]byte, error) {
	if len(presig) != 64 {
		return nil, errors.Errorf("presignature must be 64 bytes, got %d", len(presig))
	}

	var r btcec.FieldVal
	if overflow := r.SetByteSlice(presig[:32]); overflow {
		return nil, errors.Errorf("presignature R overflows field")
	}

	var s, t btcec.ModNScalar
	s.SetByteSlice(presig[32:])
	t.SetByteSlice(adaptorSecret[:])
	s.Add(&t)

	sig := schnorr.NewSignature(&r, &s)
	return sig.Serialize(), nil
}
