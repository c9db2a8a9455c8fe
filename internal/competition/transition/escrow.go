package transition

import (
	"context"

	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/oracle"
)

// awaitingEscrow polls every paid ticket's escrow transaction for at
// least one confirmation, spec §4.2 "AwaitingEscrow": "wait until every
// paid ticket's escrow transaction is confirmed."
func awaitingEscrow(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	tickets, err := deps.Store.TicketsForCompetition(ctx, comp.ID)
	if err != nil {
		return errors.Errorf("load tickets for %s: %v", comp.ID, err)
	}

	for _, t := range tickets {
		if t.PaidAt == nil {
			continue
		}
		if t.EscrowTxHex == "" {
			return errors.Errorf("ticket %s is paid but has no escrow transaction", t.ID)
		}
		txid, err := txidFromRawHex(t.EscrowTxHex)
		if err != nil {
			return errors.Errorf("ticket %s escrow txid: %v", t.ID, err)
		}
		confs, err := deps.Chain.TxConfirmations(ctx, txid)
		if err != nil {
			return errors.Errorf("ticket %s escrow confirmations: %v", t.ID, err)
		}
		if confs < 1 {
			return errors.Errorf("ticket %s escrow %s not yet confirmed", t.ID, txid)
		}
	}

	now := deps.now()
	comp.Milestones.EscrowConfirmedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// escrowConfirmed creates the prediction event with the oracle for this
// competition's observation window, spec §4.2 "EscrowConfirmed".
func escrowConfirmed(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	sub := comp.Submission

	ann, err := deps.Oracle.CreateEvent(ctx, oracle.EventSubmission{
		Stations:             sub.Stations,
		StartObservationDate: sub.StartObservationDate,
		EndObservationDate:   sub.EndObservationDate,
		SigningDate:          sub.SigningDate,
	})
	if err != nil {
		return errors.Errorf("create oracle event: %v", err)
	}

	comp.EventAnnouncement = &competition.EventAnnouncement{
		EventID:       ann.EventID,
		LockingPoints: ann.LockingPoints,
		Expiry:        ann.Expiry,
	}

	now := deps.now()
	comp.Milestones.EventCreatedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}
