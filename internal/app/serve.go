package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/mtgate/internal/audit"
	"horse.fit/mtgate/internal/auth"
	"horse.fit/mtgate/internal/cli"
	"horse.fit/mtgate/internal/db"
	"horse.fit/mtgate/internal/httpapi"
	"horse.fit/mtgate/internal/jobs"
	"horse.fit/mtgate/internal/metrics"
	"horse.fit/mtgate/internal/translation"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 6*time.Minute, "HTTP write timeout; covers synchronous translations")
	shutdownTimeout := fs.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout for HTTP and running jobs")
	bodyLimit := fs.String("body-limit", "10M", "Maximum request body size")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to resolve translation engine")
		fmt.Fprintf(os.Stderr, "Failed to resolve translation engine: %v\n", err)
		return 1
	}

	apiKeys, err := auth.NewKeySet(cfg.APIKeyHashList())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid API_KEY_HASHES: %v\n", err)
		return 1
	}

	m := metrics.New()
	observers := []jobs.Observer{m}

	var pool *db.Pool
	var ledger *audit.Ledger
	if cfg.AuditEnabled() {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err = db.NewPool(dbCtx, cfg)
		dbCancel()
		if err != nil {
			logger.Error().Err(err).Msg("serve failed to connect to database")
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			return 1
		}
		defer pool.Close()

		ledger = audit.NewLedger(pool, audit.Options{Logger: logger})
		observers = append(observers, ledger)
	}

	controller := jobs.NewController(
		jobs.NewRegistry(jobs.RegistryOptions{
			Retention:     cfg.JobRetention,
			Sliding:       cfg.JobSlidingRetention,
			SweepSchedule: cfg.JobSweepSchedule,
			Logger:        logger,
		}),
		jobs.NewPool(jobs.PoolOptions{
			MaxConcurrent: cfg.MaxConcurrentJobs,
			MaxQueued:     cfg.MaxQueuedJobs,
			Logger:        logger,
		}),
		engine,
		jobs.Options{
			EngineTimeout: cfg.EngineCallTimeout,
			Observers:     observers,
			Logger:        logger,
		},
	)
	m.WatchController(controller)

	// Workers outlive the HTTP listener so accepted jobs can drain on shutdown.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	if err := controller.Start(workCtx); err != nil {
		logger.Error().Err(err).Msg("serve failed to start job controller")
		fmt.Fprintf(os.Stderr, "Failed to start job controller: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	srv := httpapi.NewServer(controller, m, logger, httpapi.Options{
		Host:               *host,
		Port:               *port,
		ReadTimeout:        *readTimeout,
		WriteTimeout:       *writeTimeout,
		ShutdownTimeout:    *shutdownTimeout,
		BodyLimit:          *bodyLimit,
		CORSAllowedOrigins: cfg.CORSAllowedOriginsList(),
		LanguagePairs:      cfg.Pairs(),
		APIKeys:            apiKeys,
		Readiness: func(ctx context.Context) error {
			if err := translation.CheckReady(ctx, engine); err != nil {
				return fmt.Errorf("translation engine: %w", err)
			}
			if pool != nil {
				if err := pool.Ping(ctx); err != nil {
					return fmt.Errorf("audit database: %w", err)
				}
			}
			return nil
		},
	})

	logger.Info().
		Str("provider", translation.Describe(engine)).
		Int("max_concurrent_jobs", cfg.MaxConcurrentJobs).
		Int("max_queued_jobs", cfg.MaxQueuedJobs).
		Dur("job_retention", cfg.JobRetention).
		Bool("audit", ledger != nil).
		Bool("api_keys", apiKeys.Enabled()).
		Msg("translation jobs ready")

	exitCode := 0
	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer shutdownCancel()
	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("running translation jobs did not finish before shutdown timeout")
	}
	stopWork()

	if ledger != nil {
		if err := ledger.Close(shutdownCtx); err != nil {
			logger.Warn().Err(err).Int64("dropped", ledger.Dropped()).Msg("audit ledger did not flush before shutdown timeout")
		}
	}

	return exitCode
}
