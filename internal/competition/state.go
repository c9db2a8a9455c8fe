package competition

// DeriveState computes a Competition's current state as a pure function of
// its milestones and artifacts, per Design Notes "State representation":
// the timestamps remain the durable truth and the tag is recomputed on
// load, never trusted blindly from storage.
func DeriveState(c *Competition) State {
	m := c.Milestones

	switch {
	case m.CancelledAt != nil:
		return StateCancelled
	case m.FailedAt != nil:
		return StateFailed
	case m.CompletedAt != nil:
		return StateCompleted
	case m.DeltaBroadcastedAt != nil:
		return StateDeltaBroadcasted
	case m.ExpiryBroadcastedAt != nil:
		return StateExpiryBroadcasted
	case m.OutcomeBroadcastedAt != nil:
		return StateOutcomeBroadcasted
	case m.AttestedAt != nil:
		return StateAttested
	case m.FundingSettledAt != nil:
		return StateAwaitingAttestation
	case m.FundingConfirmedAt != nil:
		return StateFundingConfirmed
	case m.FundingBroadcastedAt != nil:
		return StateFundingBroadcasted
	case m.SignedAt != nil:
		return StateSigningComplete
	case m.ContractedAt != nil:
		if c.NoncesSubmitted >= c.TotalPaidEntries {
			return StateAwaitingSignatures
		}
		return StateContractCreated
	case m.EntriesSubmittedAt != nil:
		return StateEntriesSubmitted
	case m.EventCreatedAt != nil:
		return StateEventCreated
	case m.EscrowConfirmedAt != nil:
		return StateEscrowConfirmed
	case c.TotalPaidEntries > 0 && c.TotalPaidEntries == c.Submission.TotalAllowedEntries:
		return StateAwaitingEscrow
	case c.TotalPaidEntries > 0:
		return StateCollectingEntries
	default:
		return StateCreated
	}
}

// Refresh recomputes and stores CurrentState, returning it. Every mutation
// to a Competition's milestones/counts should be followed by a call to
// Refresh before the result is persisted.
func (c *Competition) Refresh() State {
	c.CurrentState = DeriveState(c)
	return c.CurrentState
}
