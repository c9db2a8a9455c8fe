// coordinatord runs the ticketed-DLC competition coordinator: the state
// driver, its transition functions, and the invoice/payment/chain-sync
// watchers that feed it. Wiring order follows lnd.go/server.go's
// subsystem construction: store, then clients, then the signing engine,
// then the driver, then the watchers, then run until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/5day4cast/coordinator-core/internal/build"
	"github.com/5day4cast/coordinator-core/internal/competition/driver"
	"github.com/5day4cast/coordinator-core/internal/config"
	"github.com/5day4cast/coordinator-core/internal/daemon"
	"github.com/5day4cast/coordinator-core/internal/watchers"
	"github.com/go-errors/errors"
)

var log = build.Logger(build.SubsystemCompetition)

func main() {
	if err := run(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	build.SetLogLevels(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infof("building subsystems")
	subsystems, err := daemon.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer subsystems.Store.Close()

	stateDriver := driver.New(driver.Config{PollInterval: cfg.PollInterval}, subsystems.Deps, subsystems.Store)

	chainSync := watchers.NewChainSyncWatcher(subsystems.Deps.Chain, cfg.ChainSyncPollInterval, func(tickCtx context.Context, height int32) {
		log.Debugf("new block %d, forcing an immediate driver tick", height)
		if err := stateDriver.Tick(tickCtx); err != nil {
			log.Errorf("forced tick failed: %v", err)
		}
	})

	if err := subsystems.Invoices.Start(ctx); err != nil {
		return errors.Errorf("start invoice watcher: %v", err)
	}
	defer subsystems.Invoices.Stop()

	if err := subsystems.Payments.Start(ctx); err != nil {
		return errors.Errorf("start payment watcher: %v", err)
	}
	defer subsystems.Payments.Stop()

	if err := chainSync.Start(ctx); err != nil {
		return errors.Errorf("start chain sync watcher: %v", err)
	}
	defer chainSync.Stop()

	if err := stateDriver.Start(); err != nil {
		return errors.Errorf("start driver: %v", err)
	}

	log.Infof("coordinatord ready")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Infof("shutting down")
	return stateDriver.Stop()
}
