package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/mtgate/internal/cli"
	"horse.fit/mtgate/internal/db"
	"horse.fit/mtgate/internal/translation"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Engine and database check timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	engine, err := buildEngine(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	if err := translation.CheckReady(ctx, engine); err != nil {
		logger.Error().Err(err).Str("provider", engine.Name()).Msg("engine health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: engine %s: %v\n", translation.Describe(engine), err)
		return 1
	}
	fmt.Printf("ok: engine %s ready\n", translation.Describe(engine))

	if !cfg.AuditEnabled() {
		fmt.Println("skip: DATABASE_URL not set, audit database not checked")
		return 0
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer pool.Close()

	logger.Info().
		Dur("timeout", *timeout).
		Msg("health check passed")
	fmt.Println("ok: database ping successful")
	return 0
}
