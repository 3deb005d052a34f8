package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"horse.fit/mtgate/internal/locale"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	JobRetention        time.Duration `envconfig:"JOB_RETENTION" default:"35m"`
	JobSlidingRetention bool          `envconfig:"JOB_SLIDING_RETENTION" default:"false"`
	JobSweepSchedule    string        `envconfig:"JOB_SWEEP_SCHEDULE" default:"@every 1m"`
	MaxConcurrentJobs   int           `envconfig:"MAX_CONCURRENT_JOBS" default:"4"`
	MaxQueuedJobs       int           `envconfig:"MAX_QUEUED_JOBS" default:"64"`
	EngineCallTimeout   time.Duration `envconfig:"ENGINE_CALL_TIMEOUT" default:"5m"`

	TranslationProvider string        `envconfig:"TRANSLATION_PROVIDER" default:"loopback"`
	TranslationEndpoint string        `envconfig:"TRANSLATION_ENDPOINT" default:"http://127.0.0.1:8080/v1"`
	TranslationModel    string        `envconfig:"TRANSLATION_MODEL" default:""`
	LoopbackLatency     time.Duration `envconfig:"LOOPBACK_LATENCY" default:"0s"`
	SkipSameLanguage    bool          `envconfig:"SKIP_SAME_LANGUAGE" default:"false"`
	LanguagePairs       string        `envconfig:"LANGUAGE_PAIRS" default:"en:de,en:cs,en:zh_tw"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"4"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
	// APIKeyHashes is a comma separated list of bcrypt hashes; empty disables key checks.
	APIKeyHashes string `envconfig:"API_KEY_HASHES" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JobRetention <= 0 {
		return fmt.Errorf("JOB_RETENTION must be > 0")
	}
	if strings.TrimSpace(c.JobSweepSchedule) == "" {
		return fmt.Errorf("JOB_SWEEP_SCHEDULE is required")
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be >= 1")
	}
	if c.MaxQueuedJobs < 0 {
		return fmt.Errorf("MAX_QUEUED_JOBS must be >= 0")
	}
	if c.EngineCallTimeout < 0 {
		return fmt.Errorf("ENGINE_CALL_TIMEOUT must be >= 0")
	}
	if c.LoopbackLatency < 0 {
		return fmt.Errorf("LOOPBACK_LATENCY must be >= 0")
	}
	if strings.TrimSpace(c.TranslationProvider) == "" {
		return fmt.Errorf("TRANSLATION_PROVIDER is required")
	}
	if _, err := locale.ParsePairs(c.LanguagePairs); err != nil {
		return fmt.Errorf("LANGUAGE_PAIRS: %w", err)
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// AuditEnabled reports whether a database is configured for the job ledger.
func (c *Config) AuditEnabled() bool {
	return c != nil && strings.TrimSpace(c.DatabaseURL) != ""
}

// Pairs returns the configured language pairs. Validate has already parsed them.
func (c *Config) Pairs() []locale.Pair {
	pairs, err := locale.ParsePairs(c.LanguagePairs)
	if err != nil {
		return nil
	}
	return pairs
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}

func (c *Config) APIKeyHashList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.APIKeyHashes, ",")
	hashes := make([]string, 0, len(parts))
	for _, part := range parts {
		if hash := strings.TrimSpace(part); hash != "" {
			hashes = append(hashes, hash)
		}
	}
	return hashes
}
