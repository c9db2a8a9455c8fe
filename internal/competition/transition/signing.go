package transition

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/dlc"
	"github.com/5day4cast/coordinator-core/internal/musig2x"
	"github.com/5day4cast/coordinator-core/internal/store"
)

// escrowSignatureKey is the literal PartialSignatures key an entry's own
// ECDSA signature over its escrow input is filed under, distinguishing
// it from the musig2x.SessionKey-keyed adaptor/plain signatures that
// share the same map.
const escrowSignatureKey = "escrow"

func publicKeyID(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// sigHashesForContract computes the Outcome and Expiry transactions'
// sighashes: both spend input 0 of the same funding output, so they share
// one prevout script/value pair.
func sigHashesForContract(comp *competition.Competition, aggregateKey *btcec.PublicKey) (outcomeHash, expiryHash [32]byte, err error) {
	fundingScript, err := dlc.PayToTaprootScript(aggregateKey)
	if err != nil {
		return outcomeHash, expiryHash, errors.Errorf("funding output script: %v", err)
	}
	fundingValue := comp.Submission.TotalPoolSats()

	outcomeTx, err := deserializeTxHex(comp.OutcomeTxHex)
	if err != nil {
		return outcomeHash, expiryHash, errors.Errorf("deserialize outcome tx: %v", err)
	}
	expiryTx, err := deserializeTxHex(comp.ExpiryTxHex)
	if err != nil {
		return outcomeHash, expiryHash, errors.Errorf("deserialize expiry tx: %v", err)
	}

	outcomeHash, err = taprootKeySpendSigHash(outcomeTx, fundingScript, fundingValue)
	if err != nil {
		return outcomeHash, expiryHash, errors.Errorf("outcome sighash: %v", err)
	}
	expiryHash, err = taprootKeySpendSigHash(expiryTx, fundingScript, fundingValue)
	if err != nil {
		return outcomeHash, expiryHash, errors.Errorf("expiry sighash: %v", err)
	}
	return outcomeHash, expiryHash, nil
}

// awaitingSignatures is the gate DeriveState folds into ContractCreated
// vs AwaitingSignatures: it's a no-op until every paid entry has
// submitted its round-1 nonces AND its round-2 partial signatures,
// spec §4.2 "AwaitingSignatures" -> "once every player's partial
// signature is present, runs Round2 for every session."
func awaitingSignatures(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	if comp.SigsSubmitted < comp.TotalPaidEntries {
		return nil
	}

	players, entries, _, err := loadPlayers(ctx, deps, comp)
	if err != nil {
		return err
	}

	outcomes, err := dlc.BuildPayoutMatrix(players, comp.Submission.NumberOfPlacesWin)
	if err != nil {
		return errors.Errorf("build payout matrix: %v", err)
	}
	sessionKeys := sessionKeysFor(outcomes)
	signers := signersFor(deps, players)

	aggregateKey, err := musig2x.AggregateKey(signers)
	if err != nil {
		return errors.Errorf("aggregate funding key: %v", err)
	}

	var coordNoncesRaw map[string][]byte
	if err := json.Unmarshal(comp.CoordinatorPublicNonces, &coordNoncesRaw); err != nil {
		return errors.Errorf("unmarshal coordinator nonces: %v", err)
	}
	coordNonces, err := decodeNonces(coordNoncesRaw)
	if err != nil {
		return errors.Errorf("decode coordinator nonces: %v", err)
	}

	playerNonces := make(map[musig2x.SessionKey]map[string][musig2.PubNonceSize]byte, len(sessionKeys))
	playerSigs := make(map[musig2x.SessionKey]map[string]*musig2.PartialSignature, len(sessionKeys))

	coordinatorID := publicKeyID(deps.CoordinatorPubkey)
	for sk, nonce := range coordNonces {
		if playerNonces[sk] == nil {
			playerNonces[sk] = map[string][musig2.PubNonceSize]byte{}
		}
		playerNonces[sk][coordinatorID] = nonce
	}

	for _, e := range entries {
		playerID := publicKeyID(e.EphemeralPubkey)

		for skStr, raw := range e.PublicNonces {
			if len(raw) != musig2.PubNonceSize {
				return errors.Errorf("entry %s nonce for session %s has wrong length %d", e.ID, skStr, len(raw))
			}
			var n [musig2.PubNonceSize]byte
			copy(n[:], raw)
			sk := musig2x.SessionKey(skStr)
			if playerNonces[sk] == nil {
				playerNonces[sk] = map[string][musig2.PubNonceSize]byte{}
			}
			playerNonces[sk][playerID] = n
		}

		for skStr, raw := range e.PartialSignatures {
			if skStr == escrowSignatureKey {
				continue
			}
			sig, err := musig2x.DecodePartialSignature(raw)
			if err != nil {
				return errors.Errorf("entry %s partial signature for session %s: %v", e.ID, skStr, err)
			}
			sk := musig2x.SessionKey(skStr)
			if playerSigs[sk] == nil {
				playerSigs[sk] = map[string]*musig2.PartialSignature{}
			}
			playerSigs[sk][playerID] = sig
		}
	}

	outcomeHash, expiryHash, err := sigHashesForContract(comp, aggregateKey)
	if err != nil {
		return err
	}

	messages := map[musig2x.SessionKey][32]byte{musig2x.FundingSessionKey: expiryHash}
	adaptorPoints := map[musig2x.SessionKey]*btcec.PublicKey{musig2x.FundingSessionKey: nil}
	for _, o := range outcomes {
		if o.Kind == dlc.OutcomeExpiry {
			continue
		}
		if o.Index >= len(comp.EventAnnouncement.LockingPoints) {
			return errors.Errorf("no locking point for outcome %d", o.Index)
		}
		sk := musig2x.OutcomeSessionKey(o.Index)
		messages[sk] = outcomeHash
		adaptorPoints[sk] = comp.EventAnnouncement.LockingPoints[o.Index]
	}

	sigs, err := deps.Engine.Round2(
		ctx, []byte(comp.FundingOutpoint), sessionKeys, signers,
		playerNonces, playerSigs, messages, adaptorPoints,
	)
	if err != nil {
		return errors.Errorf("round 2 signature aggregation: %v", err)
	}

	if comp.PartialSignatures == nil {
		comp.PartialSignatures = make(map[string][]byte, len(sigs))
	}
	for sk, sig := range sigs {
		comp.PartialSignatures[string(sk)] = sig
	}
	if fundingSig, ok := sigs[musig2x.FundingSessionKey]; ok {
		comp.SignedContractHex = hex.EncodeToString(fundingSig)
	}

	now := deps.now()
	comp.Milestones.SignedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// applyEscrowSignatures fills in every paid ticket's half of the 2-of-2
// escrow witness: the coordinator's own signature from Chain.SignWithEscrow,
// and each player's from the "escrow"-keyed entry in
// Entry.PartialSignatures (an ECDSA signature over the escrow input, not
// a musig2x session, since escrow spends aren't MuSig2-aggregated).
func applyEscrowSignatures(ctx context.Context, deps *Deps, packet *psbt.Packet, entries []*store.Entry) (*psbt.Packet, error) {
	signed, err := deps.Chain.SignWithEscrow(ctx, packet)
	if err != nil {
		return nil, errors.Errorf("coordinator escrow signature: %v", err)
	}

	for i, e := range entries {
		sig, ok := e.PartialSignatures[escrowSignatureKey]
		if !ok {
			return nil, errors.Errorf("entry %s has not submitted its escrow signature", e.ID)
		}
		// Escrow inputs start at index 0: the coordinator contributes no
		// UTXOs of its own to the funding transaction, so entries[i]
		// lines up directly with signed.Inputs[i].
		idx := i
		if idx >= len(signed.Inputs) {
			return nil, errors.Errorf("entry %s escrow input index %d out of range", e.ID, idx)
		}
		signed.Inputs[idx].PartialSigs = append(signed.Inputs[idx].PartialSigs, &psbt.PartialSig{
			PubKey:    e.EphemeralPubkey.SerializeCompressed(),
			Signature: sig,
		})
	}
	return signed, nil
}

// signingComplete finalizes and broadcasts the funding transaction once
// every escrow input carries both signatures, spec §4.2 "SigningComplete"
// -> "FundingBroadcasted".
func signingComplete(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	_, entries, _, err := loadPlayers(ctx, deps, comp)
	if err != nil {
		return err
	}

	raw, err := psbt.NewFromRawBytes(bytes.NewReader([]byte(comp.FundingPSBTBase64)), true)
	if err != nil {
		return errors.Errorf("decode funding psbt: %v", err)
	}

	signed, err := applyEscrowSignatures(ctx, deps, raw, entries)
	if err != nil {
		return err
	}

	finalTx, err := deps.Chain.FinalizeWithEscrow(ctx, signed)
	if err != nil {
		return errors.Errorf("finalize funding psbt: %v", err)
	}

	if err := deps.Chain.Broadcast(ctx, finalTx); err != nil {
		return errors.Errorf("broadcast funding tx: %v", err)
	}

	now := deps.now()
	comp.FundingTxHex = hex.EncodeToString(finalTx)
	comp.Milestones.FundingBroadcastedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}
