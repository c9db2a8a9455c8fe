// Package musig2x orchestrates the two-round MuSig2 signing pipeline of
// spec §4.4 on top of github.com/btcsuite/btcd/btcec/v2/musig2: nonce
// generation and aggregation, partial signature generation/verification,
// and final aggregation, one session per (outcome, win-condition) pair
// plus one plain (non-adaptor) session that signs the expiry
// transaction. A RemoteEngine
// implements the same Engine interface by delegating the whole batch to
// an external Keymeld-style signing service (§4.4 "Remote path").
package musig2x

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/go-errors/errors"
	"golang.org/x/crypto/chacha20"

	"github.com/5day4cast/coordinator-core/internal/build"
)

var log = build.Logger(build.SubsystemMuSig2)

// SessionKey identifies one signing session: "funding" for the plain
// expiry-transaction session, or "outcome:N" (see OutcomeSessionKey) for
// the adaptor session of outcome index N, spec §4.4 "Each player submits
// a nonce map keyed by (outcome, win-condition)".
type SessionKey string

// FundingSessionKey is the reserved key for the session that signs the
// expiry transaction, which isn't tied to any particular oracle outcome.
const FundingSessionKey SessionKey = "funding"

func OutcomeSessionKey(outcomeIndex int) SessionKey {
	return SessionKey(fmt.Sprintf("outcome:%d", outcomeIndex))
}

// Engine is the boundary the transition functions of
// internal/competition/transition program against; LocalEngine and
// RemoteEngine both satisfy it, spec §4.4 "Both paths produce the same
// SignedContract."
type Engine interface {
	// Round1 returns the coordinator's own public nonce for every
	// session key, deterministically derived per spec §4.3.5 so it can
	// be reproduced and compared after a restart.
	Round1(ctx context.Context, fundingOutpoint []byte, sessionKeys []SessionKey) (map[SessionKey][musig2.PubNonceSize]byte, error)

	// Round2 aggregates nonces, computes the coordinator's partial
	// signatures, verifies every player's partial signature, and
	// returns the fully aggregated signature per session key.
	// fundingOutpoint must match the value given to Round1 so the
	// coordinator's secret nonce can be rederived rather than persisted.
	Round2(
		ctx context.Context,
		fundingOutpoint []byte,
		sessionKeys []SessionKey,
		signers []*btcec.PublicKey,
		playerNonces map[SessionKey]map[string][musig2.PubNonceSize]byte,
		playerSigs map[SessionKey]map[string]*musig2.PartialSignature,
		messages map[SessionKey][32]byte,
		adaptorPoints map[SessionKey]*btcec.PublicKey,
	) (map[SessionKey][]byte, error)
}

// LocalEngine holds the coordinator's signing key and runs both MuSig2
// rounds itself, spec §4.4 "Local path".
type LocalEngine struct {
	coordinatorKey *btcec.PrivateKey
}

func NewLocalEngine(coordinatorKey *btcec.PrivateKey) *LocalEngine {
	return &LocalEngine{coordinatorKey: coordinatorKey}
}

// deterministicNonceReader seeds a ChaCha20 stream cipher from
// SHA256(funding_outpoint || coordinator_private_key || session key),
// spec §4.3.5: "Seed a ChaCha20 RNG deterministically ... run MuSig2
// first-round to produce the coordinator's public nonces."
func deterministicNonceReader(fundingOutpoint []byte, coordinatorKey *btcec.PrivateKey, sessionKey SessionKey) (io.Reader, error) {
	h := sha256.New()
	h.Write(fundingOutpoint)
	h.Write(coordinatorKey.Serialize())
	h.Write([]byte(sessionKey))
	seed := h.Sum(nil)

	var nonce [chacha20.NonceSize]byte
	cipher, err := chacha20.NewUnauthenticatedCipher(seed, nonce[:])
	if err != nil {
		return nil, errors.Errorf("init deterministic nonce cipher: %v", err)
	}
	return &chachaReader{cipher: cipher}, nil
}

// chachaReader turns a keystream cipher into an io.Reader of
// pseudorandom bytes, suitable for musig2.WithCustomRand.
type chachaReader struct {
	cipher *chacha20.Cipher
}

func (r *chachaReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	r.cipher.XORKeyStream(p, p)
	return len(p), nil
}

// deterministicNonces regenerates the full nonce pair (secret and
// public) for one session key from the seed material alone, so neither
// half needs to be persisted between Round1 and Round2, or across a
// process restart in between.
func (e *LocalEngine) deterministicNonces(fundingOutpoint []byte, key SessionKey) (*musig2.Nonces, error) {
	reader, err := deterministicNonceReader(fundingOutpoint, e.coordinatorKey, key)
	if err != nil {
		return nil, err
	}
	nonces, err := musig2.GenNonces(
		musig2.WithPublicKey(e.coordinatorKey.PubKey()),
		musig2.WithCustomRand(reader),
	)
	if err != nil {
		return nil, errors.Errorf("gen nonces for %s: %v", key, err)
	}
	return nonces, nil
}

// Round1 generates one deterministic nonce pair per session key.
func (e *LocalEngine) Round1(
	_ context.Context,
	fundingOutpoint []byte,
	sessionKeys []SessionKey,
) (map[SessionKey][musig2.PubNonceSize]byte, error) {

	out := make(map[SessionKey][musig2.PubNonceSize]byte, len(sessionKeys))
	for _, key := range sessionKeys {
		nonces, err := e.deterministicNonces(fundingOutpoint, key)
		if err != nil {
			return nil, err
		}
		out[key] = nonces.PubNonce
		log.Debugf("generated deterministic nonce for session %s", key)
	}
	return out, nil
}

// ReconstructAndCompare regenerates the coordinator's round-1 nonces from
// the same seed material and checks them against what was persisted,
// spec §4.4 "Determinism": "mismatch is fatal."
func (e *LocalEngine) ReconstructAndCompare(
	fundingOutpoint []byte,
	persisted map[SessionKey][musig2.PubNonceSize]byte,
) error {
	keys := make([]SessionKey, 0, len(persisted))
	for k := range persisted {
		keys = append(keys, k)
	}
	regenerated, err := e.Round1(context.Background(), fundingOutpoint, keys)
	if err != nil {
		return err
	}
	for k, want := range persisted {
		got, ok := regenerated[k]
		if !ok || got != want {
			return errors.Errorf(
				"nonce mismatch on restart for session %s: got %x want %x",
				k, got, want)
		}
	}
	return nil
}

// Round2 aggregates nonces, partial-signs with the coordinator's key
// (tweaking the challenge by the adaptor point when one is supplied),
// verifies every player's partial signature, and aggregates. The first
// verification failure stops the batch and is returned as an error;
// transition.Advance records it like any other transition error.
func (e *LocalEngine) Round2(
	_ context.Context,
	fundingOutpoint []byte,
	sessionKeys []SessionKey,
	signers []*btcec.PublicKey,
	playerNonces map[SessionKey]map[string][musig2.PubNonceSize]byte,
	playerSigs map[SessionKey]map[string]*musig2.PartialSignature,
	messages map[SessionKey][32]byte,
	adaptorPoints map[SessionKey]*btcec.PublicKey,
) (map[SessionKey][]byte, error) {

	results := make(map[SessionKey][]byte, len(sessionKeys))

	for _, key := range sessionKeys {
		var allNonces [][musig2.PubNonceSize]byte
		for _, n := range playerNonces[key] {
			allNonces = append(allNonces, n)
		}

		combined, err := musig2.AggregateNonces(allNonces)
		if err != nil {
			return nil, errors.Errorf("aggregate nonces for %s: %v", key, err)
		}

		msg := messages[key]

		signOpts := signOptionsFor(adaptorPoints[key])

		localNonces, err := e.deterministicNonces(fundingOutpoint, key)
		if err != nil {
			return nil, err
		}

		coordSig, err := musig2.Sign(
			localNonces.SecNonce, e.coordinatorKey, combined, signers, msg, signOpts...,
		)
		if err != nil {
			return nil, errors.Errorf("coordinator partial sign for %s: %v", key, err)
		}

		sigs := []*musig2.PartialSignature{coordSig}
		for playerID, sig := range playerSigs[key] {
			pub, ok := signerByID(signers, playerID)
			if !ok {
				return nil, errors.Errorf("unknown signer %s for session %s", playerID, key)
			}
			if err := musig2.PartialSigVerify(
				sig, combined, playerNonces[key][playerID], pub, signers, msg, signOpts...,
			); err != nil {
				return nil, errors.Errorf(
					"partial signature verification failed for player %s session %s: %v",
					playerID, key, err)
			}
			sigs = append(sigs, sig)
		}

		finalSig := musig2.AggregateSig(combined, sigs)
		results[key] = finalSig.Serialize()

		log.Debugf("aggregated signature for session %s from %d signers", key, len(sigs))
	}

	return results, nil
}

// signOptionsFor builds the MuSig2 sign/verify options that tweak the
// effective nonce by the oracle's locking point, producing (and later
// requiring an adaptor-complete of) the DLC adaptor signature, spec §4.2
// "Attested": "construct the signed outcome transaction using the
// attestation as the adaptor-secret." A nil adaptorPoint means a plain
// (non-adaptor) signature, used for the expiry-transaction session.
func signOptionsFor(adaptorPoint *btcec.PublicKey) []musig2.SignOption {
	if adaptorPoint == nil {
		return nil
	}
	return []musig2.SignOption{musig2.WithTweakedNonce(adaptorPoint)}
}

func signerByID(signers []*btcec.PublicKey, id string) (*btcec.PublicKey, bool) {
	for _, s := range signers {
		if hex.EncodeToString(s.SerializeCompressed()) == id {
			return s, true
		}
	}
	return nil, false
}
