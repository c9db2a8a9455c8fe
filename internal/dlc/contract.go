package dlc

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"

	competition "github.com/5day4cast/coordinator-core/internal/competition"
)

// ContractParameters is everything the MuSig2 engine and the transaction
// builders need to construct and sign a competition's DLC, spec §4.3.3.
type ContractParameters struct {
	MarketMaker       *btcec.PublicKey
	Players           []Player
	EventAnnouncement *competition.EventAnnouncement
	Outcomes          []Outcome
	FeeRateSatPerVByte int64
	FundingValueSats   int64
	RelativeLocktime   uint32 // block delta, spec §4.2 "DeltaBroadcasted"
}

// BuildContractParameters assembles §4.3.3's contract parameters from the
// coordinator's key, the competition's paid players, the oracle's event
// announcement, a fee estimate, the total pool, and the configured
// relative-locktime delta.
func BuildContractParameters(
	marketMaker *btcec.PublicKey,
	players []Player,
	announcement *competition.EventAnnouncement,
	feeRateSatPerVByte int64,
	fundingValueSats int64,
	relativeLocktime uint32,
	numberOfPlacesWin int,
) (*ContractParameters, error) {

	sorted := SortPlayers(players)
	outcomes, err := BuildPayoutMatrix(sorted, numberOfPlacesWin)
	if err != nil {
		return nil, err
	}

	return &ContractParameters{
		MarketMaker:        marketMaker,
		Players:            sorted,
		EventAnnouncement:  announcement,
		Outcomes:           outcomes,
		FeeRateSatPerVByte: feeRateSatPerVByte,
		FundingValueSats:   fundingValueSats,
		RelativeLocktime:   relativeLocktime,
	}, nil
}

// WinningOutcome locates the ranking outcome whose locking point matches
// the oracle's attestation, spec §4.2 "Attested". The refund-all and
// Expiry outcomes are addressed directly by index and never looked up
// here.
func (cp *ContractParameters) WinningOutcome(outcomeIndex int) (*Outcome, error) {
	for i := range cp.Outcomes {
		if cp.Outcomes[i].Index == outcomeIndex {
			return &cp.Outcomes[i], nil
		}
	}
	return nil, errors.Errorf("dlc: no outcome at index %d", outcomeIndex)
}
