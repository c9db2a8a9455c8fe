package transition

import (
	"context"

	"github.com/go-errors/errors"

	"github.com/5day4cast/coordinator-core/internal/competition"
)

// minFundingConfirmations is the depth the funding transaction must reach
// before a competition is considered settled enough to start paying out
// invoices against it.
const minFundingConfirmations = 1

// fundingBroadcasted polls the funding transaction for confirmation,
// spec §4.2 "FundingBroadcasted" -> "FundingConfirmed".
func fundingBroadcasted(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	txid, err := txidFromRawHex(comp.FundingTxHex)
	if err != nil {
		return errors.Errorf("funding txid: %v", err)
	}

	confs, err := deps.Chain.TxConfirmations(ctx, txid)
	if err != nil {
		return errors.Errorf("funding confirmations: %v", err)
	}
	if confs < minFundingConfirmations {
		return errors.Errorf("funding tx %s not yet confirmed", txid)
	}

	now := deps.now()
	comp.Milestones.FundingConfirmedAt = &now
	return deps.Store.SaveCompetition(ctx, comp)
}

// fundingConfirmed marks the competition settled and kicks off HODL
// invoice settlement for every paid ticket, spec §4.2 "FundingConfirmed"
// -> "FundingSettled". The milestone is persisted before
// SettleCompetition runs since InvoiceWatcher refuses to settle a
// competition that doesn't already read funding_settled_at; since that
// also moves DeriveState past this function for good, a settlement
// failure here is logged rather than retried. InvoiceWatcher's
// invoice-update stream only marks tickets paid and never settles them,
// so a ticket this call misses stays unsettled.
func fundingConfirmed(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	now := deps.now()
	comp.Milestones.FundingSettledAt = &now
	if err := deps.Store.SaveCompetition(ctx, comp); err != nil {
		return errors.Errorf("persist funding settled: %v", err)
	}

	if err := deps.Invoices.SettleCompetition(ctx, comp.ID); err != nil {
		log.Errorf("settle competition %s invoices: %v", comp.ID, err)
	}
	return nil
}
