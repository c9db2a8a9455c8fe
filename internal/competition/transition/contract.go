package transition

import (
	"context"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
	"github.com/google/uuid"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/dlc"
	"github.com/5day4cast/coordinator-core/internal/musig2x"
	"github.com/5day4cast/coordinator-core/internal/oracle"
	"github.com/5day4cast/coordinator-core/internal/store"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

// eventCreated submits every entry's picks to the oracle for the event
// just created, spec §4.2 "EventCreated".
func eventCreated(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	entries, err := deps.Store.EntriesForCompetition(ctx, comp.ID)
	if err != nil {
		return errors.Errorf("load entries for %s: %v", comp.ID, err)
	}

	picks := make([][]oracle.EntryPick, len(entries))
	for i, e := range entries {
		picks[i] = e.Picks
	}

	if err := deps.Oracle.SubmitEntries(ctx, comp.EventAnnouncement.EventID, picks); err != nil {
		return errors.Errorf("submit entries: %v", err)
	}

	now := deps.now()
	comp.Milestones.EntriesSubmittedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// paidEntries returns the entries whose ticket has been paid, joined
// against the ticket map keyed by ticket ID.
func paidEntries(entries []*store.Entry, ticketsByID map[uuid.UUID]*ticket.Ticket) []*store.Entry {
	out := make([]*store.Entry, 0, len(entries))
	for _, e := range entries {
		t, ok := ticketsByID[e.TicketID]
		if !ok || t.PaidAt == nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// buildPlayers joins a competition's paid entries with their tickets into
// the dlc package's Player shape.
func buildPlayers(entries []*store.Entry, ticketsByID map[uuid.UUID]*ticket.Ticket) ([]dlc.Player, error) {
	players := make([]dlc.Player, 0, len(entries))
	for _, e := range entries {
		t, ok := ticketsByID[e.TicketID]
		if !ok {
			return nil, errors.Errorf("entry %s references unknown ticket %s", e.ID, e.TicketID)
		}
		players = append(players, dlc.Player{
			EntryID:         e.ID,
			EphemeralPubkey: e.EphemeralPubkey,
			TicketHash:      t.PreimageHash,
			PayoutHash:      e.PayoutHash,
		})
	}
	return dlc.SortPlayers(players), nil
}

// buildEscrowInputs reconstructs one dlc.EscrowInput per paid ticket from
// its already-broadcast escrow transaction, spec §4.3.4: "one
// foreign-UTXO per paid ticket's escrow output."
func buildEscrowInputs(
	deps *Deps,
	entries []*store.Entry,
	ticketsByID map[uuid.UUID]*ticket.Ticket,
	invoiceAmountSats int64,
) ([]dlc.EscrowInput, error) {

	inputs := make([]dlc.EscrowInput, 0, len(entries))
	for _, e := range entries {
		t := ticketsByID[e.TicketID]

		txid, err := txidFromRawHex(t.EscrowTxHex)
		if err != nil {
			return nil, errors.Errorf("ticket %s escrow txid: %v", t.ID, err)
		}

		userPubkey, err := parseParticipantPubkey(t.UserPubkey)
		if err != nil {
			return nil, errors.Errorf("ticket %s user pubkey: %v", t.ID, err)
		}

		witnessScript, err := dlc.EscrowWitnessScript(deps.CoordinatorPubkey, userPubkey, t.PreimageHash)
		if err != nil {
			return nil, errors.Errorf("ticket %s witness script: %v", t.ID, err)
		}

		inputs = append(inputs, dlc.EscrowInput{
			OutPoint:      wireOutPoint(txid, 0),
			Value:         invoiceAmountSats,
			WitnessScript: witnessScript,
		})
	}
	return inputs, nil
}

// loadPlayers fetches a competition's paid entries and tickets and joins
// them into dlc.Player form, sorted deterministically. Every later-stage
// transition needs the same join to re-derive signer keys and the
// payout matrix, both of which are pure functions of this data and so
// are never persisted separately.
func loadPlayers(ctx context.Context, deps *Deps, comp *competition.Competition) (
	players []dlc.Player, entries []*store.Entry, ticketsByID map[uuid.UUID]*ticket.Ticket, err error) {

	allEntries, err := deps.Store.EntriesForCompetition(ctx, comp.ID)
	if err != nil {
		return nil, nil, nil, errors.Errorf("load entries for %s: %v", comp.ID, err)
	}
	tickets, err := deps.Store.TicketsForCompetition(ctx, comp.ID)
	if err != nil {
		return nil, nil, nil, errors.Errorf("load tickets for %s: %v", comp.ID, err)
	}

	ticketsByID = make(map[uuid.UUID]*ticket.Ticket, len(tickets))
	for _, t := range tickets {
		ticketsByID[t.ID] = t
	}

	entries = paidEntries(allEntries, ticketsByID)
	if len(entries) == 0 {
		return nil, nil, nil, errors.Errorf("competition %s has no paid entries", comp.ID)
	}

	players, err = buildPlayers(entries, ticketsByID)
	if err != nil {
		return nil, nil, nil, err
	}
	return players, entries, ticketsByID, nil
}

// signersFor orders the coordinator ahead of every player's ephemeral key,
// the signer set every MuSig2 aggregation and Round2 call needs.
func signersFor(deps *Deps, players []dlc.Player) []*btcec.PublicKey {
	signers := make([]*btcec.PublicKey, 0, len(players)+1)
	signers = append(signers, deps.CoordinatorPubkey)
	for _, p := range players {
		signers = append(signers, p.EphemeralPubkey)
	}
	return signers
}

// entriesSubmitted builds the DLC: the payout matrix, the funding PSBT,
// and the unsigned Outcome/Expiry transactions (spend targets for the
// signing round that follows), then runs MuSig2 round 1 for every
// session this competition needs, spec §4.2 "EntriesSubmitted":
// "Populates contract_parameters, funding_outpoint, funding_psbt_base64,
// and the coordinator's public_nonces."
func entriesSubmitted(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	players, entries, ticketsByID, err := loadPlayers(ctx, deps, comp)
	if err != nil {
		return err
	}

	feeEstimate, err := deps.Chain.EstimateFee(ctx, deps.FeeRateConfTarget)
	if err != nil {
		return errors.Errorf("estimate fee: %v", err)
	}

	sub := comp.Submission
	cp, err := dlc.BuildContractParameters(
		deps.CoordinatorPubkey, players, comp.EventAnnouncement,
		feeEstimate.SatPerVByte, sub.TotalPoolSats(),
		deps.RelativeLocktimeBlocks, sub.NumberOfPlacesWin,
	)
	if err != nil {
		return errors.Errorf("build contract parameters: %v", err)
	}

	signers := signersFor(deps, players)

	aggregateKey, err := musig2x.AggregateKey(signers)
	if err != nil {
		return errors.Errorf("aggregate funding key: %v", err)
	}

	invoiceAmount := competition.InvoiceAmountSats(sub.EntryFeeSats, sub.CoordinatorFeePct)
	escrowInputs, err := buildEscrowInputs(deps, entries, ticketsByID, invoiceAmount)
	if err != nil {
		return err
	}

	fundingResult, err := dlc.BuildFundingPSBT(
		aggregateKey, cp.FundingValueSats, nil, escrowInputs, nil, cp.FeeRateSatPerVByte,
	)
	if err != nil {
		return errors.Errorf("build funding psbt: %v", err)
	}

	outcomeTx, err := dlc.BuildOutcomeTx(
		fundingResult.FundingOutpoint, cp.FundingValueSats, deps.CoordinatorPubkey,
		cp.RelativeLocktime, cp.FeeRateSatPerVByte,
	)
	if err != nil {
		return errors.Errorf("build outcome tx: %v", err)
	}
	outcomeTxHex, err := serializeTxHex(outcomeTx)
	if err != nil {
		return err
	}

	coordinatorPayoutScript, err := dlc.PayToTaprootScript(deps.CoordinatorPubkey)
	if err != nil {
		return errors.Errorf("coordinator payout script: %v", err)
	}
	expiryTx, err := dlc.BuildExpiryTx(
		fundingResult.FundingOutpoint, cp.FundingValueSats, coordinatorPayoutScript, cp.FeeRateSatPerVByte,
	)
	if err != nil {
		return errors.Errorf("build expiry tx: %v", err)
	}
	expiryTxHex, err := serializeTxHex(expiryTx)
	if err != nil {
		return err
	}

	sessionKeys := sessionKeysFor(cp.Outcomes)

	fundingOutpointBytes := []byte(outpointString(fundingResult.FundingOutpoint))
	nonces, err := deps.Engine.Round1(ctx, fundingOutpointBytes, sessionKeys)
	if err != nil {
		return errors.Errorf("round 1 nonce generation: %v", err)
	}

	nonceBlob, err := json.Marshal(encodeNonces(nonces))
	if err != nil {
		return errors.Errorf("marshal coordinator nonces: %v", err)
	}

	comp.FundingPSBTBase64 = fundingResult.Base64
	comp.FundingOutpoint = outpointString(fundingResult.FundingOutpoint)
	comp.OutcomeTxHex = outcomeTxHex
	comp.ExpiryTxHex = expiryTxHex
	comp.CoordinatorPublicNonces = nonceBlob

	now := deps.now()
	comp.Milestones.ContractedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// sessionKeysFor lists the MuSig2 sessions a contract needs: the plain
// funding session that signs the Expiry transaction, plus one adaptor
// session per ranking and refund-all outcome. The Expiry outcome has no session of its own since
// it corresponds to the plain funding session signature instead.
func sessionKeysFor(outcomes []dlc.Outcome) []musig2x.SessionKey {
	keys := []musig2x.SessionKey{musig2x.FundingSessionKey}
	for _, o := range outcomes {
		if o.Kind == dlc.OutcomeExpiry {
			continue
		}
		keys = append(keys, musig2x.OutcomeSessionKey(o.Index))
	}
	return keys
}
