package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/mtgate/internal/cli"
	"horse.fit/mtgate/internal/jobs"
	"horse.fit/mtgate/internal/translation"
	"horse.fit/mtgate/schema"
)

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "-", "Translate request JSON file, or - for stdin")
	async := fs.Bool("async", false, "Run the request as an async job and poll until it finishes")
	poll := fs.Duration("poll", 250*time.Millisecond, "Status poll interval with --async")
	timeout := fs.Duration("timeout", 6*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "translate does not accept positional arguments")
		printTranslateUsage()
		return 2
	}
	if *poll <= 0 {
		fmt.Fprintln(os.Stderr, "--poll must be > 0")
		return 2
	}

	raw, err := readRequestFile(strings.TrimSpace(*file))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read request: %v\n", err)
		return 1
	}
	req, err := schema.ValidateTranslateRequest(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID request: %v\n", err)
		return 1
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve translation engine: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	controller := jobs.NewController(
		jobs.NewRegistry(jobs.RegistryOptions{Retention: cfg.JobRetention, Logger: logger}),
		jobs.NewPool(jobs.PoolOptions{MaxConcurrent: 1, MaxQueued: 1, Logger: logger}),
		engine,
		jobs.Options{EngineTimeout: cfg.EngineCallTimeout, Logger: logger},
	)

	var resp *translation.Response
	if *async {
		resp, err = translateAsync(ctx, controller, *req, *poll)
	} else {
		resp, err = controller.TranslateSync(ctx, *req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Translate failed: %v\n", err)
		return 1
	}

	if err := printJSON(resp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}

func translateAsync(ctx context.Context, controller *jobs.Controller, req translation.Request, poll time.Duration) (*translation.Response, error) {
	if err := controller.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = controller.Shutdown(shutdownCtx)
	}()

	id, err := controller.SubmitAsync(ctx, req)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "job %s submitted\n", id)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		status, err := controller.QueryStatus(id)
		if err != nil {
			return nil, err
		}
		if status.Status != jobs.StatusRunning {
			return controller.QueryResult(id)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("job %s still running: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func readRequestFile(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printTranslateUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  mtgate translate --file request.json [--async] [--poll 250ms] [--env .env] [--timeout 6m]")
	fmt.Fprintln(os.Stderr, "  cat request.json | mtgate translate")
}
