// Package config loads the coordinator's single on-disk configuration
// the way lnd's own config.go does: a go-flags struct with an INI file
// read first, then command-line flags layered on top so a flag overrides
// the same setting in the file, spec §A.3.
package config

import (
	"os"
	"time"

	"github.com/go-errors/errors"
	flags "github.com/jessevdk/go-flags"
)

// ChainConfig points at a single btcd full node the coordinator uses
// for UTXO selection, signing, and broadcast, generalizing
// chainregistry.go's single-backend case.
type ChainConfig struct {
	RPCHost string `long:"rpchost" description:"host:port of the btcd RPC server"`
	RPCUser string `long:"rpcuser" description:"btcd RPC username"`
	RPCPass string `long:"rpcpass" description:"btcd RPC password"`
	RPCCert string `long:"rpccert" description:"path to btcd's TLS certificate"`
}

// LightningConfig points at the external lnd node the coordinator talks
// to as a single client, not as a peer (no gossip, no channels of its
// own).
type LightningConfig struct {
	Address      string `long:"address" description:"host:port of lnd's gRPC listener"`
	MacaroonPath string `long:"macaroonpath" description:"path to lnd's invoice/admin macaroon"`
	TLSPath      string `long:"tlspath" description:"path to lnd's TLS certificate"`
	Network      string `long:"network" description:"bitcoin network lnd is running on" default:"mainnet"`
}

// OracleConfig points at the DLC oracle's HTTP API.
type OracleConfig struct {
	BaseURL string `long:"baseurl" description:"oracle HTTP base URL"`
	APIKey  string `long:"apikey" description:"oracle API key"`
}

// RemoteSigningConfig toggles the Keymeld remote MuSig2 path on in place
// of the local engine, spec §4.4 "Remote path".
type RemoteSigningConfig struct {
	Enabled bool   `long:"enabled" description:"sign with the remote Keymeld gateway instead of the local MuSig2 engine"`
	BaseURL string `long:"baseurl" description:"Keymeld gateway base URL"`
	APIKey  string `long:"apikey" description:"Keymeld API key"`
}

// Config is the coordinator daemon's full configuration surface.
type Config struct {
	ConfigFile string `long:"configfile" description:"path to an INI config file" default:"coordinatord.conf"`

	PostgresDSN string `long:"postgresdsn" description:"Postgres connection string"`

	CoordinatorKeyPath string `long:"coordinatorkeypath" description:"path to the coordinator's raw 32-byte signing key"`

	Chain         ChainConfig         `group:"chain" namespace:"chain"`
	Lightning     LightningConfig     `group:"lightning" namespace:"lightning"`
	Oracle        OracleConfig        `group:"oracle" namespace:"oracle"`
	RemoteSigning RemoteSigningConfig `group:"remotesigning" namespace:"remotesigning"`

	// PollInterval is how often the driver sweeps active competitions,
	// spec §4.1.2.
	PollInterval time.Duration `long:"pollinterval" description:"how often the driver polls active competitions" default:"10s"`

	// ChainSyncPollInterval is how often internal/watchers checks the
	// chain tip.
	ChainSyncPollInterval time.Duration `long:"chainsyncpollinterval" description:"how often the chain tip is polled" default:"30s"`

	// EscrowConfDepth/FundingConfDepth are parsed and defaulted here but
	// no transition reads them: escrow, funding, outcome and close
	// confirmations are all checked against a fixed depth of one
	// confirmation in internal/competition/transition.
	EscrowConfDepth  int32 `long:"escrowconfdepth" description:"escrow confirmation depth (not read; transitions require one confirmation)" default:"1"`
	FundingConfDepth int32 `long:"fundingconfdepth" description:"funding confirmation depth (not read; transitions require one confirmation)" default:"3"`

	// RelativeLocktimeBlocks is the CSV delta baked into every
	// outcome/split-close output, spec §4.2 "DeltaBroadcasted".
	RelativeLocktimeBlocks uint32 `long:"relativelocktimeblocks" description:"CSV delta baked into outcome/split-close outputs" default:"144"`

	// FeeRateConfTarget is the confirmation target in blocks used
	// whenever a transition asks the chain backend for a fee estimate.
	FeeRateConfTarget uint32 `long:"feerateconftarget" description:"confirmation target used for fee estimation" default:"6"`

	// MaxFeeRateSatPerVByte is parsed and defaulted here but no
	// transition reads it: broadcasts use the chain backend's fee
	// estimate with no ceiling applied.
	MaxFeeRateSatPerVByte int64 `long:"maxfeeratesatpervbyte" description:"fee-rate ceiling (not read; broadcasts are not capped)" default:"500"`

	LogLevel string `long:"loglevel" description:"log level applied to every subsystem" default:"info"`
}

// Default returns a Config with every documented default applied and
// nothing else, the starting point Load's parser mutates in place.
func Default() *Config {
	return &Config{
		ConfigFile:             "coordinatord.conf",
		Lightning:              LightningConfig{Network: "mainnet"},
		PollInterval:           10 * time.Second,
		ChainSyncPollInterval:  30 * time.Second,
		EscrowConfDepth:        1,
		FundingConfDepth:       3,
		RelativeLocktimeBlocks: 144,
		FeeRateConfTarget:      6,
		MaxFeeRateSatPerVByte:  500,
		LogLevel:               "info",
	}
}

// Load reads args into a fresh Config, first applying any INI file named
// by --configfile (if present), then the explicit flags, so flags always
// win over the file the way lnd's own LoadConfig does it.
func Load(args []string) (*Config, error) {
	cfg := Default()
	preParser := flags.NewParser(cfg, flags.Default|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if err := flags.NewIniParser(flags.NewParser(cfg, flags.Default)).ParseFile(cfg.ConfigFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Errorf("parse config file %s: %v", cfg.ConfigFile, err)
			}
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the cross-field invariants a single flags struct can't
// express: a DSN and coordinator key are always required, and the
// remote-signing gateway's address is only required when that path is
// actually enabled.
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return errors.Errorf("postgresdsn is required")
	}
	if c.CoordinatorKeyPath == "" {
		return errors.Errorf("coordinatorkeypath is required")
	}
	if c.RemoteSigning.Enabled && c.RemoteSigning.BaseURL == "" {
		return errors.Errorf("remotesigning.baseurl is required when remotesigning.enabled is set")
	}
	if c.PollInterval <= 0 {
		return errors.Errorf("pollinterval must be positive")
	}
	if c.ChainSyncPollInterval <= 0 {
		return errors.Errorf("chainsyncpollinterval must be positive")
	}
	return nil
}
