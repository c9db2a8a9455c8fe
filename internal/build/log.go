// Package build centralizes the coordinator's per-subsystem loggers, the
// way lnd's top-level log.go wires a btclog.Logger into every package that
// does meaningful work.
package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// Subsystem tags, short so log lines stay scannable.
const (
	SubsystemCompetition = "CMPT"
	SubsystemDriver      = "DRVR"
	SubsystemTransition  = "XITN"
	SubsystemTicket      = "TICK"
	SubsystemDLC         = "DLCS"
	SubsystemMuSig2      = "MSIG"
	SubsystemChain       = "CHNW"
	SubsystemLightning   = "LTNG"
	SubsystemOracle      = "ORCL"
	SubsystemStore       = "STOR"
	SubsystemPayout      = "PYUT"
	SubsystemWatcher     = "WTCH"
)

var (
	backend = btclog.NewBackend(os.Stdout)

	loggers = map[string]btclog.Logger{
		SubsystemCompetition: backend.Logger(SubsystemCompetition),
		SubsystemDriver:      backend.Logger(SubsystemDriver),
		SubsystemTransition:  backend.Logger(SubsystemTransition),
		SubsystemTicket:      backend.Logger(SubsystemTicket),
		SubsystemDLC:         backend.Logger(SubsystemDLC),
		SubsystemMuSig2:      backend.Logger(SubsystemMuSig2),
		SubsystemChain:       backend.Logger(SubsystemChain),
		SubsystemLightning:   backend.Logger(SubsystemLightning),
		SubsystemOracle:      backend.Logger(SubsystemOracle),
		SubsystemStore:       backend.Logger(SubsystemStore),
		SubsystemPayout:      backend.Logger(SubsystemPayout),
		SubsystemWatcher:     backend.Logger(SubsystemWatcher),
	}
)

// Logger returns the shared logger for a subsystem tag, creating a
// passthrough disabled logger if the tag is unknown rather than panicking –
// a misspelled tag shouldn't take down the process.
func Logger(subsystem string) btclog.Logger {
	if l, ok := loggers[subsystem]; ok {
		return l
	}
	return btclog.Disabled
}

// SetLogLevels applies the same level string to every registered
// subsystem. Individual levels can still be raised later with
// SetSubLogger.
func SetLogLevels(levelStr string) {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		level = btclog.LevelInfo
	}
	for _, l := range loggers {
		l.SetLevel(level)
	}
}

// SetSubLogger overrides the level of a single subsystem, letting an
// operator e.g. turn on debug logging for DLCS without drowning in driver
// chatter.
func SetSubLogger(subsystem, levelStr string) {
	l, ok := loggers[subsystem]
	if !ok {
		return
	}
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return
	}
	l.SetLevel(level)
}
