// Package transition implements the one-effect-per-state body of the
// competition driver's state machine: each exported-by-convention
// lower-case function performs the single I/O effect spec §4.2 assigns to
// one State, persists the result, and sets the milestone timestamp that
// moves DeriveState forward. Advance is the dispatcher the driver calls
// once per tick.
package transition

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/5day4cast/coordinator-core/internal/build"
	"github.com/5day4cast/coordinator-core/internal/chain"
	"github.com/5day4cast/coordinator-core/internal/musig2x"
	"github.com/5day4cast/coordinator-core/internal/oracle"
	"github.com/5day4cast/coordinator-core/internal/store"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

var log = build.Logger(build.SubsystemTransition)

// Deps is the capability set every per-state function is given. It is
// built once at startup and handed to Advance on every driver tick.
type Deps struct {
	Chain    chain.Client
	Oracle   oracle.Client
	Engine   musig2x.Engine
	Store    store.Store
	Invoices *ticket.InvoiceWatcher

	CoordinatorPubkey *btcec.PublicKey

	// RelativeLocktimeBlocks is the CSV delta baked into every
	// outcome/split-close output, spec §4.2 "DeltaBroadcasted". Fixed
	// coordinator-wide rather than per-competition so the same value is
	// used consistently by every stage that reconstructs a script.
	RelativeLocktimeBlocks uint32

	// FeeRateConfTarget is the confirmation target passed to
	// Chain.EstimateFee whenever a transition needs a fresh fee rate.
	FeeRateConfTarget uint32

	// Now lets tests substitute a fixed clock; nil means time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
