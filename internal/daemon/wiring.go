// Package daemon builds the subsystem graph both coordinatord and
// coordinatorctl need from a single Config: store, chain/lightning/
// oracle clients, and the signing engine. Grounded on lnd.go/server.go's
// habit of giving every subsystem's construction its own small function
// called once from main, so coordinatord's long-running wiring and
// coordinatorctl's one-shot "force-tick" command build the exact same
// graph instead of drifting apart.
package daemon

import (
	"context"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/go-errors/errors"
	"github.com/lightninglabs/lndclient"

	"github.com/5day4cast/coordinator-core/internal/chain"
	"github.com/5day4cast/coordinator-core/internal/competition/transition"
	"github.com/5day4cast/coordinator-core/internal/config"
	"github.com/5day4cast/coordinator-core/internal/lightning"
	"github.com/5day4cast/coordinator-core/internal/musig2x"
	"github.com/5day4cast/coordinator-core/internal/oracle"
	"github.com/5day4cast/coordinator-core/internal/payout"
	"github.com/5day4cast/coordinator-core/internal/store/postgres"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

// LoadCoordinatorKey reads the coordinator's raw 32-byte signing key
// from disk.
func LoadCoordinatorKey(path string) (*btcec.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errors.Errorf("coordinator key at %s must be exactly 32 bytes, got %d", path, len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// ConnectChain dials the configured btcd backend.
func ConnectChain(cfg *config.Config, coordinatorKey *btcec.PrivateKey) (*chain.BTCDClient, error) {
	cert, err := os.ReadFile(cfg.Chain.RPCCert)
	if err != nil {
		return nil, errors.Errorf("read rpc cert: %v", err)
	}

	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Chain.RPCHost,
		User:         cfg.Chain.RPCUser,
		Pass:         cfg.Chain.RPCPass,
		Certificates: cert,
		HTTPPostMode: true,
		DisableTLS:   false,
	}, nil)
	if err != nil {
		return nil, err
	}

	return chain.NewBTCDClient(rpc, coordinatorKey), nil
}

// ConnectLightning dials the configured lnd node.
func ConnectLightning(cfg *config.Config) (*lightning.LNDClient, error) {
	services, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:         cfg.Lightning.Address,
		Network:            lndclient.Network(cfg.Lightning.Network),
		CustomMacaroonPath: cfg.Lightning.MacaroonPath,
		TLSPath:            cfg.Lightning.TLSPath,
	})
	if err != nil {
		return nil, err
	}

	return lightning.NewLNDClient(services.Client, services.Invoices, services.Router), nil
}

// ConnectStoreOnly connects just the competition store, for operator
// commands (coordinatorctl's create-competition/list-competitions/
// show-competition) that read or write competition rows without needing
// the chain, lightning, oracle, or signing subsystems force-tick does.
func ConnectStoreOnly(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	return postgres.New(ctx, cfg.PostgresDSN)
}

// Subsystems is every long-lived component coordinatord runs, plus the
// store both binaries need.
type Subsystems struct {
	Store    *postgres.Store
	Deps     *transition.Deps
	Invoices *ticket.InvoiceWatcher
	Payments *payout.PaymentWatcher
}

// Build connects the store and every external client, then assembles
// transition.Deps and the watchers that feed it, the order lnd.go builds
// chainRegistry -> server -> rpcServer in.
func Build(ctx context.Context, cfg *config.Config) (*Subsystems, error) {
	coordinatorKey, err := LoadCoordinatorKey(cfg.CoordinatorKeyPath)
	if err != nil {
		return nil, errors.Errorf("load coordinator key: %v", err)
	}

	competitionStore, err := postgres.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, errors.Errorf("connect store: %v", err)
	}

	chainClient, err := ConnectChain(cfg, coordinatorKey)
	if err != nil {
		return nil, errors.Errorf("connect chain client: %v", err)
	}

	lightningClient, err := ConnectLightning(cfg)
	if err != nil {
		return nil, errors.Errorf("connect lightning client: %v", err)
	}

	oracleClient := oracle.NewHTTPClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey)

	var engine musig2x.Engine
	if cfg.RemoteSigning.Enabled {
		engine = musig2x.NewRemoteEngine(
			cfg.RemoteSigning.BaseURL, cfg.RemoteSigning.APIKey, musig2x.DefaultPollingConfig(),
		)
	} else {
		engine = musig2x.NewLocalEngine(coordinatorKey)
	}

	invoices := ticket.NewInvoiceWatcher(lightningClient, chainClient, competitionStore)
	payments := payout.NewPaymentWatcher(lightningClient, competitionStore)

	deps := &transition.Deps{
		Chain:                  chainClient,
		Oracle:                 oracleClient,
		Engine:                 engine,
		Store:                  competitionStore,
		Invoices:               invoices,
		CoordinatorPubkey:      coordinatorKey.PubKey(),
		RelativeLocktimeBlocks: cfg.RelativeLocktimeBlocks,
		FeeRateConfTarget:      cfg.FeeRateConfTarget,
	}

	return &Subsystems{
		Store:    competitionStore,
		Deps:     deps,
		Invoices: invoices,
		Payments: payments,
	}, nil
}
