package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"horse.fit/mtgate/internal/cli"
	"horse.fit/mtgate/internal/globaltime"
)

func runAudit(args []string) int {
	if len(args) == 0 {
		printAuditUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "list":
		return runAuditList(args[1:])
	case "counts":
		return runAuditCounts(args[1:])
	case "purge":
		return runAuditPurge(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown audit command: %s\n\n", args[0])
		printAuditUsage()
		return 2
	}
}

func runAuditList(args []string) int {
	fs := flag.NewFlagSet("audit list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 50, "Maximum number of jobs")
	state := fs.String("state", "", "Only jobs in this state: pending, running, done or failed")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	stateFilter := strings.ToLower(strings.TrimSpace(*state))
	switch stateFilter {
	case "", "pending", "running", "done", "failed":
	default:
		fmt.Fprintln(os.Stderr, "--state must be pending, running, done or failed")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	rows, err := pool.ListRecentTranslationJobs(ctx, *limit, stateFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list translation jobs: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		duration := ""
		if row.DurationMS != nil {
			duration = (time.Duration(*row.DurationMS) * time.Millisecond).String()
		}
		tableRows = append(tableRows, []string{
			row.JobID,
			row.State,
			row.SourceLanguage + ">" + row.TargetLanguage,
			strconv.Itoa(row.SegmentCount),
			formatUTCTimestamp(row.SubmittedAt),
			formatUTCTimestampPtr(row.FinishedAt),
			duration,
			truncateForTable(pointerStringOrEmpty(row.Detail), 60),
		})
	}
	if err := writeTable([]string{"JOB", "STATE", "PAIR", "SEGMENTS", "SUBMITTED", "FINISHED", "DURATION", "DETAIL"}, tableRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write table: %v\n", err)
		return 1
	}
	return 0
}

func runAuditCounts(args []string) int {
	fs := flag.NewFlagSet("audit counts", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	counts, err := pool.CountTranslationJobsByState(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count translation jobs: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(counts); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)
	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{state, strconv.FormatInt(counts[state], 10)})
	}
	if err := writeTable([]string{"STATE", "JOBS"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write table: %v\n", err)
		return 1
	}
	return 0
}

func runAuditPurge(args []string) int {
	fs := flag.NewFlagSet("audit purge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "Purge jobs submitted longer ago than this")
	before := fs.String("before", "", "Purge jobs submitted before this UTC date (YYYY-MM-DD); overrides --older-than")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cutoff, err := resolvePurgeCutoff(strings.TrimSpace(*before), *olderThan, globaltime.UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	removed, err := pool.PurgeTranslationJobsBefore(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to purge translation jobs: %v\n", err)
		return 1
	}

	fmt.Printf("audit purge cutoff=%s removed=%d\n", cutoff.Format(time.RFC3339), removed)
	return 0
}

func resolvePurgeCutoff(before string, olderThan time.Duration, now time.Time) (time.Time, error) {
	if before != "" {
		day, err := parseUTCDate(before)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --before: %w", err)
		}
		return day, nil
	}
	if olderThan <= 0 {
		return time.Time{}, fmt.Errorf("--older-than must be > 0")
	}
	return now.UTC().Add(-olderThan), nil
}

func printAuditUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  mtgate audit list [--limit 50] [--state failed] [--format table|json] [--env .env]")
	fmt.Fprintln(os.Stderr, "  mtgate audit counts [--format table|json] [--env .env]")
	fmt.Fprintln(os.Stderr, "  mtgate audit purge [--older-than 720h | --before YYYY-MM-DD] [--env .env]")
}
