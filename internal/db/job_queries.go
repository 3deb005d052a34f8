package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TranslationJobRow is one audit row as listed by the CLI.
type TranslationJobRow struct {
	JobID          string
	State          string
	SourceLanguage string
	TargetLanguage string
	SegmentCount   int
	Detail         *string
	SubmittedAt    time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	DurationMS     *int64
}

// UpsertTranslationJobParams carries one lifecycle transition of a job.
type UpsertTranslationJobParams struct {
	JobID          string
	State          string
	SourceLanguage string
	TargetLanguage string
	SegmentCount   int
	SubmittedAt    time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	Detail         *string
	DurationMS     *int64
}

const insertTranslationJobColumns = `
INSERT INTO translation_jobs (
	job_id,
	state,
	source_language,
	target_language,
	segment_count,
	detail,
	submitted_at,
	started_at,
	finished_at,
	duration_ms,
	created_at,
	updated_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertTranslationJob records a submission. A row written earlier by a
// faster worker transition is left untouched.
func (p *Pool) InsertTranslationJob(ctx context.Context, params UpsertTranslationJobParams) error {
	q := insertTranslationJobColumns + `ON CONFLICT (job_id) DO NOTHING`
	if _, err := p.Exec(ctx, q, upsertArgs(params)...); err != nil {
		return fmt.Errorf("insert translation job %s: %w", params.JobID, err)
	}
	return nil
}

// MarkTranslationJobStarted records the running transition, creating the row if needed.
func (p *Pool) MarkTranslationJobStarted(ctx context.Context, params UpsertTranslationJobParams) error {
	q := insertTranslationJobColumns + `
ON CONFLICT (job_id) DO UPDATE SET
	state = excluded.state,
	started_at = excluded.started_at,
	updated_at = excluded.updated_at
`
	if _, err := p.Exec(ctx, q, upsertArgs(params)...); err != nil {
		return fmt.Errorf("mark translation job %s started: %w", params.JobID, err)
	}
	return nil
}

// MarkTranslationJobFinished records the terminal transition, creating the row if needed.
func (p *Pool) MarkTranslationJobFinished(ctx context.Context, params UpsertTranslationJobParams) error {
	q := insertTranslationJobColumns + `
ON CONFLICT (job_id) DO UPDATE SET
	state = excluded.state,
	detail = excluded.detail,
	finished_at = excluded.finished_at,
	duration_ms = excluded.duration_ms,
	updated_at = excluded.updated_at
`
	if _, err := p.Exec(ctx, q, upsertArgs(params)...); err != nil {
		return fmt.Errorf("mark translation job %s finished: %w", params.JobID, err)
	}
	return nil
}

func (p *Pool) ListRecentTranslationJobs(ctx context.Context, limit int, state string) ([]TranslationJobRow, error) {
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT
	job_id,
	state,
	source_language,
	target_language,
	segment_count,
	detail,
	submitted_at,
	started_at,
	finished_at,
	duration_ms
FROM translation_jobs
WHERE (? = '' OR state = ?)
ORDER BY submitted_at DESC, job_id DESC
LIMIT ?
`

	state = strings.ToLower(strings.TrimSpace(state))
	rows, err := p.Query(ctx, q, state, state, limit)
	if err != nil {
		return nil, fmt.Errorf("query translation jobs: %w", err)
	}
	defer rows.Close()

	items := make([]TranslationJobRow, 0, limit)
	for rows.Next() {
		var row TranslationJobRow
		if err := rows.Scan(
			&row.JobID,
			&row.State,
			&row.SourceLanguage,
			&row.TargetLanguage,
			&row.SegmentCount,
			&row.Detail,
			&row.SubmittedAt,
			&row.StartedAt,
			&row.FinishedAt,
			&row.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan translation job row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translation job rows: %w", err)
	}

	return items, nil
}

func (p *Pool) CountTranslationJobsByState(ctx context.Context) (map[string]int64, error) {
	const q = `
SELECT state, COUNT(*)
FROM translation_jobs
GROUP BY state
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count translation jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, 4)
	for rows.Next() {
		var (
			state string
			count int64
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan translation job count: %w", err)
		}
		counts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translation job counts: %w", err)
	}
	return counts, nil
}

// PurgeTranslationJobsBefore deletes rows submitted before cutoff.
func (p *Pool) PurgeTranslationJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.Exec(ctx, `DELETE FROM translation_jobs WHERE submitted_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge translation jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func upsertArgs(params UpsertTranslationJobParams) []any {
	now := time.Now().UTC()
	return []any{
		params.JobID,
		params.State,
		params.SourceLanguage,
		params.TargetLanguage,
		params.SegmentCount,
		params.Detail,
		params.SubmittedAt.UTC(),
		utcPtr(params.StartedAt),
		utcPtr(params.FinishedAt),
		params.DurationMS,
		now,
		now,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
