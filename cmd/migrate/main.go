package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"brdconsole.org/internal/config"
	"brdconsole.org/internal/migrate"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/store/pg"
)

func main() {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	var (
		dsn     = flag.String("dsn", cfg.Mock.PGDSN, "PostgreSQL DSN (BRD_MOCK_PG_DSN)")
		timeout = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [flags] up|down|seed|status")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := obs.Logger().With().Str("component", "migrate").Logger()
	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or BRD_MOCK_PG_DSN")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer st.Close()

	runner, err := pg.Runner(st.DB())
	if err != nil {
		log.Fatal().Err(err).Msg("load migrations")
	}

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var steps []migrate.Step
		steps, err = runner.Up(ctx)
		logSteps(log, steps)
	case "down":
		var step migrate.Step
		step, err = runner.Down(ctx)
		if err == nil {
			log.Info().Str("migration", step.Name).Msg("reverted")
		}
	case "seed":
		var steps []migrate.Step
		steps, err = runner.Seed(ctx)
		logSteps(log, steps)
	case "status":
		var history []migrate.Entry
		history, err = runner.Status(ctx)
		if err == nil {
			printStatus(runner.Plan(), history)
		}
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migrate failed")
	}
	log.Info().Str("command", cmd).Msg("done")
}

func logSteps(log zerolog.Logger, steps []migrate.Step) {
	for _, step := range steps {
		log.Info().Str("kind", string(step.Kind)).Str("name", step.Name).Msg("applied")
	}
}

// printStatus lists every planned script with its applied time or "pending".
func printStatus(plan migrate.Plan, history []migrate.Entry) {
	applied := make(map[string]time.Time, len(history))
	for _, e := range history {
		applied[string(e.Kind)+"/"+e.Name] = e.AppliedAt
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, steps := range [][]migrate.Step{plan.Migrations, plan.Seeds} {
		for _, step := range steps {
			state := "pending"
			if at, ok := applied[string(step.Kind)+"/"+step.Name]; ok {
				state = at.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", step.Kind, step.Name, state)
		}
	}
	_ = tw.Flush()
}
