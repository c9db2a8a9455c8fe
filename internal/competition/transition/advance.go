package transition

import (
	"context"

	"github.com/5day4cast/coordinator-core/internal/competition"
)

// Advance runs the one transition function assigned to a Competition's
// current state, if any, spec §4.2's per-state action table. States with
// no I/O effect of their own (purely derived, like ContractCreated before
// its nonce threshold, or any terminal state) are a no-op return.
//
// A returned error is treated as transient: it's appended to the
// competition's bounded error log (spec §3/§7) rather than propagated as
// fatal. Once the log exceeds MaxTransientErrors, Advance itself fails
// the competition and persists that outcome, so callers never need their
// own retry-exhaustion logic.
func Advance(ctx context.Context, deps *Deps, comp *competition.Competition) error {
	state := comp.CurrentState

	var err error
	switch state {
	case competition.StateAwaitingEscrow:
		err = awaitingEscrow(ctx, deps, comp)
	case competition.StateEscrowConfirmed:
		err = escrowConfirmed(ctx, deps, comp)
	case competition.StateEventCreated:
		err = eventCreated(ctx, deps, comp)
	case competition.StateEntriesSubmitted:
		err = entriesSubmitted(ctx, deps, comp)
	case competition.StateAwaitingSignatures:
		err = awaitingSignatures(ctx, deps, comp)
	case competition.StateSigningComplete:
		err = signingComplete(ctx, deps, comp)
	case competition.StateFundingBroadcasted:
		err = fundingBroadcasted(ctx, deps, comp)
	case competition.StateFundingConfirmed:
		err = fundingConfirmed(ctx, deps, comp)
	case competition.StateAwaitingAttestation:
		err = awaitingAttestation(ctx, deps, comp)
	case competition.StateAttested:
		err = attested(ctx, deps, comp)
	case competition.StateOutcomeBroadcasted:
		err = outcomeBroadcasted(ctx, deps, comp)
	case competition.StateDeltaBroadcasted:
		err = deltaBroadcasted(ctx, deps, comp)
	default:
		return nil
	}

	if err == nil {
		comp.ClearErrors()
		comp.Refresh()
		return nil
	}

	now := deps.now()
	comp.AppendError(state, now, err)

	if !comp.IsFatalErrorState() {
		return err
	}

	log.Errorf("competition %s failed in state %s after %d transient errors: %v",
		comp.ID, state, competition.MaxTransientErrors, err)

	comp.Milestones.FailedAt = &now
	comp.Refresh()
	if saveErr := deps.Store.SaveCompetition(ctx, comp); saveErr != nil {
		log.Errorf("persist failed competition %s: %v", comp.ID, saveErr)
		return saveErr
	}
	return err
}
