// Package oracle defines the consumed Oracle Client boundary: creating an
// event for a competition's observation window, submitting player entries,
// and fetching the event plus its eventual attestation.
package oracle

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/5day4cast/coordinator-core/internal/build"
)

var log = build.Logger(build.SubsystemOracle)

// EventSubmission is what the coordinator sends to create_event: the
// observation window and station set an admin configured for a
// competition, spec §4.3.
type EventSubmission struct {
	Stations             []string
	StartObservationDate time.Time
	EndObservationDate   time.Time
	SigningDate          time.Time
}

// EventAnnouncement is create_event's response: one locking point per
// outcome index, in PayoutMatrix order, plus an optional hard expiry.
type EventAnnouncement struct {
	EventID       string
	LockingPoints []*btcec.PublicKey
	Expiry        *time.Time
}

// Attestation is what get_event eventually carries once the oracle has
// observed the outcome: a scalar revealing exactly one locking point.
type Attestation struct {
	Scalar       [32]byte
	OutcomeIndex int
}

// EntryPick is one player's submitted prediction for a single station.
type EntryPick struct {
	Station string
	Pick    string
}

// Client is the capability set a prediction oracle must provide, spec §6:
// "create_event(submission); submit_entries(event_id, [picks]);
// get_event(id) -> event plus optional attestation."
type Client interface {
	CreateEvent(ctx context.Context, submission EventSubmission) (*EventAnnouncement, error)
	SubmitEntries(ctx context.Context, eventID string, picks [][]EntryPick) error
	GetEvent(ctx context.Context, eventID string) (*EventAnnouncement, *Attestation, error)
}
