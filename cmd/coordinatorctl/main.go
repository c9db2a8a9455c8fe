// coordinatorctl is the operator control surface for a running
// coordinatord, grounded on cmd/lncli's urfave/cli command registration
// pattern. There is no gRPC surface to dial (spec's Non-goals exclude
// the API layer), so every command talks to the same Postgres store and
// subsystem graph coordinatord itself builds from internal/daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/competition/transition"
	"github.com/5day4cast/coordinator-core/internal/config"
	"github.com/5day4cast/coordinator-core/internal/daemon"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[coordinatorctl] %v\n", err)
	os.Exit(1)
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var args []string
	if path := ctx.GlobalString("configfile"); path != "" {
		args = append(args, "--configfile="+path)
	}
	return config.Load(args)
}

var createCompetitionCommand = cli.Command{
	Name:      "create-competition",
	Usage:     "create a new competition awaiting entries",
	ArgsUsage: "--stations=KSEA,KPDX --entryfeesats=10000",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "stations", Usage: "comma-separated observation station codes"},
		cli.Int64Flag{Name: "entryfeesats", Usage: "per-entry fee in satoshis"},
		cli.Float64Flag{Name: "coordinatorfeepct", Usage: "coordinator fee percentage"},
		cli.IntFlag{Name: "totalallowedentries", Usage: "maximum number of entries"},
		cli.IntFlag{Name: "numberofplaceswin", Usage: "number of paid ranks"},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		background := context.Background()
		store, err := daemon.ConnectStoreOnly(background, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		submission := competition.EventSubmission{
			Stations:            strings.Split(ctx.String("stations"), ","),
			EntryFeeSats:        ctx.Int64("entryfeesats"),
			CoordinatorFeePct:   ctx.Float64("coordinatorfeepct"),
			TotalAllowedEntries: ctx.Int("totalallowedentries"),
			NumberOfPlacesWin:   ctx.Int("numberofplaceswin"),
		}

		comp := competition.New(uuid.New(), submission, time.Now())
		if err := store.CreateCompetition(background, comp); err != nil {
			return err
		}

		fmt.Println(comp.ID)
		return nil
	},
}

var listCompetitionsCommand = cli.Command{
	Name:  "list-competitions",
	Usage: "list every non-terminal competition",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		background := context.Background()
		store, err := daemon.ConnectStoreOnly(background, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		comps, err := store.ListActiveCompetitions(background)
		if err != nil {
			return err
		}

		for _, c := range comps {
			fmt.Printf("%s\t%s\t%s\n", c.ID, c.CurrentState, c.Milestones.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var showCompetitionCommand = cli.Command{
	Name:      "show-competition",
	Usage:     "show one competition's full state",
	ArgsUsage: "<competition-id>",
	Action: func(ctx *cli.Context) error {
		id, err := uuid.Parse(ctx.Args().First())
		if err != nil {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		background := context.Background()
		store, err := daemon.ConnectStoreOnly(background, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		comp, err := store.CompetitionByID(background, id)
		if err != nil {
			return err
		}

		fmt.Printf("id:          %s\n", comp.ID)
		fmt.Printf("state:       %s\n", comp.CurrentState)
		fmt.Printf("created at:  %s\n", comp.Milestones.CreatedAt.Format(time.RFC3339))
		if comp.EventAnnouncement != nil {
			fmt.Printf("event id:    %s\n", comp.EventAnnouncement.EventID)
		}
		if len(comp.Errors) > 0 {
			fmt.Printf("errors:      %d (last: %v)\n", len(comp.Errors), comp.LastError())
		}
		return nil
	},
}

var forceTickCommand = cli.Command{
	Name:      "force-tick",
	Usage:     "advance one competition (or every active competition) outside the driver's own poll interval",
	ArgsUsage: "[competition-id]",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		background := context.Background()
		subsystems, err := daemon.Build(background, cfg)
		if err != nil {
			return err
		}
		defer subsystems.Store.Close()

		if id := ctx.Args().First(); id != "" {
			compID, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			comp, err := subsystems.Store.CompetitionByID(background, compID)
			if err != nil {
				return err
			}
			return transition.Advance(background, subsystems.Deps, comp)
		}

		comps, err := subsystems.Store.ListActiveCompetitions(background)
		if err != nil {
			return err
		}
		for _, comp := range comps {
			if err := transition.Advance(background, subsystems.Deps, comp); err != nil {
				fmt.Fprintf(os.Stderr, "competition %s: %v\n", comp.ID, err)
			}
		}
		return nil
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "coordinatorctl"
	app.Usage = "operator control plane for coordinatord"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "configfile",
			Usage: "path to coordinatord's INI config file",
		},
	}
	app.Commands = []cli.Command{
		createCompetitionCommand,
		listCompetitionsCommand,
		showCompetitionCommand,
		forceTickCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
