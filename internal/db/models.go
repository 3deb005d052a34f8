package db

import "time"

// TranslationJob maps translation_jobs, the append-mostly audit trail of async jobs.
type TranslationJob struct {
	JobID          string     `gorm:"column:job_id;type:varchar(64);primaryKey"`
	State          string     `gorm:"column:state;type:varchar(16);not null;index:idx_translation_jobs_state_finished,priority:1"`
	SourceLanguage string     `gorm:"column:source_language;type:varchar(16);not null;default:''"`
	TargetLanguage string     `gorm:"column:target_language;type:varchar(16);not null;default:''"`
	SegmentCount   int        `gorm:"column:segment_count;not null;default:0"`
	Detail         *string    `gorm:"column:detail;type:text"`
	SubmittedAt    time.Time  `gorm:"column:submitted_at;not null"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at;index:idx_translation_jobs_state_finished,priority:2"`
	DurationMS     *int64     `gorm:"column:duration_ms"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
}

func (TranslationJob) TableName() string { return "translation_jobs" }

func autoMigrateModels() []any {
	return []any{
		&TranslationJob{},
	}
}
