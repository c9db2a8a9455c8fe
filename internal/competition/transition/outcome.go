package transition

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"
	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/dlc"
	"github.com/5day4cast/coordinator-core/internal/musig2x"
)

// broadcastTaprootSpend attaches a completed key-path witness to input 0
// of an already-built transaction and broadcasts it, used for both the
// Outcome and Expiry transactions since they spend the same taproot
// funding output.
func broadcastTaprootSpend(ctx context.Context, deps *Deps, unsignedHex string, sig []byte) (string, error) {
	tx, err := deserializeTxHex(unsignedHex)
	if err != nil {
		return "", err
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig}

	rawHex, err := serializeTxHex(tx)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", errors.Errorf("decode serialized tx: %v", err)
	}
	if err := deps.Chain.Broadcast(ctx, raw); err != nil {
		return "", errors.Errorf("broadcast: %v", err)
	}
	return rawHex, nil
}

// awaitingAttestation polls the oracle for an attestation, or, once the
// announcement's expiry has passed the chain's own clock, broadcasts the
// Expiry transaction instead, spec §4.2 "AwaitingAttestation": "poll
// get_event for the attestation; if the announced expiry passes first,
// broadcast the Expiry transaction using the plain funding signature."
func awaitingAttestation(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	if comp.EventAnnouncement.Expiry != nil {
		fundingTxid, err := txidFromRawHex(comp.FundingTxHex)
		if err != nil {
			return errors.Errorf("funding txid: %v", err)
		}
		confs, err := deps.Chain.TxConfirmations(ctx, fundingTxid)
		if err != nil {
			return errors.Errorf("funding confirmations: %v", err)
		}
		chainNow, err := deps.Chain.ConfirmedTimestamp(ctx, fundingTxid, confs)
		if err != nil {
			return errors.Errorf("chain-anchored timestamp: %v", err)
		}

		if chainNow >= comp.EventAnnouncement.Expiry.Unix() {
			return broadcastExpiry(ctx, deps, comp)
		}
	}

	_, attestation, err := deps.Oracle.GetEvent(ctx, comp.EventAnnouncement.EventID)
	if err != nil {
		return errors.Errorf("poll oracle event: %v", err)
	}
	if attestation == nil {
		return errors.Errorf("competition %s: attestation not yet available", comp.ID)
	}

	comp.Attestation = &competition.Attestation{
		Scalar:       attestation.Scalar,
		OutcomeIndex: attestation.OutcomeIndex,
	}

	now := deps.now()
	comp.Milestones.AttestedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// broadcastExpiry completes the plain (non-adaptor) funding-session
// signature over the Expiry transaction and broadcasts it. Spec §4.2:
// the expiry path pays the whole funding output back to the coordinator
// in one step, so it's also immediately Completed.
func broadcastExpiry(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	sig, ok := comp.PartialSignatures[string(musig2x.FundingSessionKey)]
	if !ok {
		return errors.Errorf("competition %s: no funding-session signature to complete expiry", comp.ID)
	}

	rawHex, err := broadcastTaprootSpend(ctx, deps, comp.ExpiryTxHex, sig)
	if err != nil {
		return errors.Errorf("broadcast expiry tx: %v", err)
	}

	now := deps.now()
	comp.ExpiryTxHex = rawHex
	comp.Milestones.ExpiryBroadcastedAt = &now
	comp.Milestones.CompletedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// attested completes the winning outcome's adaptor presignature with the
// oracle's revealed scalar and broadcasts the Outcome transaction, spec
// §4.2 "Attested" -> "OutcomeBroadcasted".
func attested(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	sessionKey := musig2x.OutcomeSessionKey(comp.Attestation.OutcomeIndex)
	presig, ok := comp.PartialSignatures[string(sessionKey)]
	if !ok {
		return errors.Errorf("competition %s: no presignature for outcome %d", comp.ID, comp.Attestation.OutcomeIndex)
	}

	finalSig, err := musig2x.CompleteSignature(presig, comp.Attestation.Scalar)
	if err != nil {
		return errors.Errorf("complete outcome signature: %v", err)
	}

	rawHex, err := broadcastTaprootSpend(ctx, deps, comp.OutcomeTxHex, finalSig)
	if err != nil {
		return errors.Errorf("broadcast outcome tx: %v", err)
	}

	now := deps.now()
	comp.OutcomeTxHex = rawHex
	comp.Milestones.OutcomeBroadcastedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// winningSplits re-derives the payout matrix and returns the attested
// outcome's per-winner amounts against the Outcome transaction's actual
// output value, joined with each winner's off-chain PaidOut status.
func winningSplits(ctx context.Context, deps *Deps, comp *competition.Competition, outcomeValue int64) ([]dlc.WinnerSplit, error) {
	players, _, _, err := loadPlayers(ctx, deps, comp)
	if err != nil {
		return nil, err
	}
	outcomes, err := dlc.BuildPayoutMatrix(players, comp.Submission.NumberOfPlacesWin)
	if err != nil {
		return nil, errors.Errorf("build payout matrix: %v", err)
	}

	var winning *dlc.Outcome
	for i := range outcomes {
		if outcomes[i].Index == comp.Attestation.OutcomeIndex {
			winning = &outcomes[i]
			break
		}
	}
	if winning == nil {
		return nil, errors.Errorf("no outcome row at index %d", comp.Attestation.OutcomeIndex)
	}

	splits := make([]dlc.WinnerSplit, 0, len(winning.Weights))
	for playerIdx, weightPct := range winning.Weights {
		if playerIdx >= len(players) {
			return nil, errors.Errorf("weight references out-of-range player index %d", playerIdx)
		}
		p := players[playerIdx]
		entry, err := deps.Store.EntryByID(ctx, p.EntryID)
		if err != nil {
			return nil, errors.Errorf("load entry %s: %v", p.EntryID, err)
		}
		splits = append(splits, dlc.WinnerSplit{
			Player:  p,
			Weight:  weightPct,
			Amount:  outcomeValue * int64(weightPct) / 100,
			PaidOut: entry.PaidOut,
		})
	}
	return splits, nil
}

// outcomeBroadcasted waits for the Outcome transaction to confirm, then
// sweeps it: a single Close transaction if every winner has already
// been paid off-chain, or a per-winner Split-Close transaction
// otherwise, spec §4.2 "OutcomeBroadcasted" -> "DeltaBroadcasted".
func outcomeBroadcasted(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	outcomeTxid, err := txidFromRawHex(comp.OutcomeTxHex)
	if err != nil {
		return errors.Errorf("outcome txid: %v", err)
	}
	confs, err := deps.Chain.TxConfirmations(ctx, outcomeTxid)
	if err != nil {
		return errors.Errorf("outcome confirmations: %v", err)
	}
	if confs < minFundingConfirmations {
		return errors.Errorf("outcome tx %s not yet confirmed", outcomeTxid)
	}

	outcomeTx, err := deserializeTxHex(comp.OutcomeTxHex)
	if err != nil {
		return err
	}
	outcomeOutpoint := wireOutPoint(outcomeTxid, 0)
	outcomeValue := outcomeTx.TxOut[0].Value
	outcomeWitnessScript, err := dlc.OutcomeScript(deps.CoordinatorPubkey, deps.RelativeLocktimeBlocks)
	if err != nil {
		return errors.Errorf("outcome witness script: %v", err)
	}

	splits, err := winningSplits(ctx, deps, comp, outcomeValue)
	if err != nil {
		return err
	}

	coordinatorScript, err := dlc.PayToTaprootScript(deps.CoordinatorPubkey)
	if err != nil {
		return errors.Errorf("coordinator payout script: %v", err)
	}
	feeRate := feeRateOrDefault(ctx, deps)

	coordinatorKey, err := deps.Chain.CoordinatorPrivateKey(ctx)
	if err != nil {
		return errors.Errorf("coordinator private key: %v", err)
	}
	defer coordinatorKey.Zero()

	allPaid := true
	for _, s := range splits {
		if !s.PaidOut {
			allPaid = false
			break
		}
	}

	now := deps.now()
	if allPaid {
		closeTx, err := dlc.BuildCloseTx(
			outcomeOutpoint, outcomeValue, coordinatorScript, deps.RelativeLocktimeBlocks, feeRate,
		)
		if err != nil {
			return errors.Errorf("build close tx: %v", err)
		}
		witness, err := signWitnessScriptSpend(closeTx, outcomeTx.TxOut[0].PkScript, outcomeValue, outcomeWitnessScript, coordinatorKey)
		if err != nil {
			return errors.Errorf("sign close tx: %v", err)
		}
		closeTx.TxIn[0].Witness = witness

		closeHex, err := broadcastSerializedTx(ctx, deps, closeTx)
		if err != nil {
			return errors.Errorf("broadcast close tx: %v", err)
		}
		comp.CloseTxHex = closeHex
	} else {
		splitTx, unpaidIdx, err := dlc.BuildSplitCloseTx(
			outcomeOutpoint, splits, deps.CoordinatorPubkey, coordinatorScript, deps.RelativeLocktimeBlocks, feeRate,
		)
		if err != nil {
			return errors.Errorf("build split close tx: %v", err)
		}
		witness, err := signWitnessScriptSpend(splitTx, outcomeTx.TxOut[0].PkScript, outcomeValue, outcomeWitnessScript, coordinatorKey)
		if err != nil {
			return errors.Errorf("sign split close tx: %v", err)
		}
		splitTx.TxIn[0].Witness = witness

		splitHex, err := broadcastSerializedTx(ctx, deps, splitTx)
		if err != nil {
			return errors.Errorf("broadcast split close tx: %v", err)
		}
		comp.SplitCloseTxHex = splitHex
		comp.SplitOutputIndex = make(map[string]int, len(unpaidIdx))
		for splitIdx, outIdx := range unpaidIdx {
			comp.SplitOutputIndex[splits[splitIdx].Player.EntryID.String()] = outIdx
		}
	}

	comp.Milestones.DeltaBroadcastedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// deltaBroadcasted waits for every unpaid winner's split output to mature
// and sweeps it back to the coordinator, spec §4.2 "DeltaBroadcasted" ->
// "Completed". The unified close path has nothing left to reclaim, so it
// only needs to wait for confirmation.
func deltaBroadcasted(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	if comp.SplitCloseTxHex == "" {
		txid, err := txidFromRawHex(comp.CloseTxHex)
		if err != nil {
			return errors.Errorf("close txid: %v", err)
		}
		confs, err := deps.Chain.TxConfirmations(ctx, txid)
		if err != nil {
			return errors.Errorf("close confirmations: %v", err)
		}
		if confs < minFundingConfirmations {
			return errors.Errorf("close tx %s not yet confirmed", txid)
		}

		now := deps.now()
		comp.Milestones.CompletedAt = &now
		return deps.Store.SaveCompetition(ctx, comp)
	}

	splitTxid, err := txidFromRawHex(comp.SplitCloseTxHex)
	if err != nil {
		return errors.Errorf("split close txid: %v", err)
	}
	confs, err := deps.Chain.TxConfirmations(ctx, splitTxid)
	if err != nil {
		return errors.Errorf("split close confirmations: %v", err)
	}
	if confs < int32(deps.RelativeLocktimeBlocks) {
		return errors.Errorf("split close tx %s has not matured its relative locktime", splitTxid)
	}

	splitTx, err := deserializeTxHex(comp.SplitCloseTxHex)
	if err != nil {
		return err
	}

	coordinatorScript, err := dlc.PayToTaprootScript(deps.CoordinatorPubkey)
	if err != nil {
		return errors.Errorf("coordinator payout script: %v", err)
	}
	splitWitnessScript, err := dlc.OutcomeScript(deps.CoordinatorPubkey, deps.RelativeLocktimeBlocks)
	if err != nil {
		return errors.Errorf("split witness script: %v", err)
	}
	feeRate := feeRateOrDefault(ctx, deps)

	coordinatorKey, err := deps.Chain.CoordinatorPrivateKey(ctx)
	if err != nil {
		return errors.Errorf("coordinator private key: %v", err)
	}
	defer coordinatorKey.Zero()

	for entryID, outIdx := range comp.SplitOutputIndex {
		splitOutpoint := wireOutPoint(splitTxid, uint32(outIdx))
		splitValue := splitTx.TxOut[outIdx].Value

		reclaimTx, err := dlc.BuildSplitReclaimTx(
			splitOutpoint, splitValue, coordinatorScript, deps.RelativeLocktimeBlocks, feeRate,
		)
		if err != nil {
			return errors.Errorf("build reclaim tx for entry %s: %v", entryID, err)
		}
		witness, err := signWitnessScriptSpend(
			reclaimTx, splitTx.TxOut[outIdx].PkScript, splitValue, splitWitnessScript, coordinatorKey,
		)
		if err != nil {
			return errors.Errorf("sign reclaim tx for entry %s: %v", entryID, err)
		}
		reclaimTx.TxIn[0].Witness = witness

		if _, err := broadcastSerializedTx(ctx, deps, reclaimTx); err != nil {
			return errors.Errorf("broadcast reclaim tx for entry %s: %v", entryID, err)
		}
	}

	now := deps.now()
	comp.Milestones.CompletedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// broadcastSerializedTx serializes an already-witnessed transaction and
// relays it, returning its hex form for persistence.
func broadcastSerializedTx(ctx context.Context, deps *Deps, tx *wire.MsgTx) (string, error) {
	rawHex, err := serializeTxHex(tx)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", errors.Errorf("decode serialized tx: %v", err)
	}
	if err := deps.Chain.Broadcast(ctx, raw); err != nil {
		return "", errors.Errorf("broadcast: %v", err)
	}
	return rawHex, nil
}

// feeRateOrDefault re-estimates the fee rate for the close/split-close/
// reclaim cascade; unlike the Outcome/Expiry transactions these aren't
// presigned ahead of time so there's no drift risk in asking for a fresh
// estimate each time one is built.
func feeRateOrDefault(ctx context.Context, deps *Deps) int64 {
	est, err := deps.Chain.EstimateFee(ctx, deps.FeeRateConfTarget)
	if err != nil {
		return 1
	}
	return est.SatPerVByte
}
