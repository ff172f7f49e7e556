package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Digest   DigestConfig   `mapstructure:"digest"   validate:"required"`
	Chunker  ChunkerConfig  `mapstructure:"chunker"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`

	// MigrationsDir is the directory holding goose SQL migrations.
	MigrationsDir string `mapstructure:"migrations_dir" validate:"required"`
}

// WorkerConfig contains settings for the background task worker.
type WorkerConfig struct {
	// BatchSize is the maximum number of ready tasks fetched per poll.
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0"`

	// PollIntervalMS is the idle delay between polls, in milliseconds.
	PollIntervalMS int `mapstructure:"poll_interval_ms" validate:"required,gt=0"`

	// MaxAttempts is the retry ceiling after which a task fails permanently.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// StaleAfterSeconds marks an in-progress task as crashed once its last
	// attempt is older than this.
	StaleAfterSeconds int `mapstructure:"stale_after_seconds" validate:"required,gt=0"`

	// StaleSweepIntervalSeconds controls how often the stale-task sweep runs.
	StaleSweepIntervalSeconds int `mapstructure:"stale_sweep_interval_seconds" validate:"required,gt=0"`

	// RatePerSecond is the token-bucket rate limit applied to task execution.
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"required,gt=0"`

	// RetryBaseSeconds and RetryMaxSeconds bound the exponential retry delay.
	RetryBaseSeconds int `mapstructure:"retry_base_seconds" validate:"required,gt=0"`
	RetryMaxSeconds  int `mapstructure:"retry_max_seconds"  validate:"required,gt=0"`

	// RetryJitterFactor perturbs retry delays to avoid thundering herds.
	RetryJitterFactor float64 `mapstructure:"retry_jitter_factor" validate:"gte=0,lte=1"`
}

// DigestConfig contains settings for the digest coordinator.
type DigestConfig struct {
	// Concurrency bounds how many files may be digested at the same time.
	Concurrency int `mapstructure:"concurrency" validate:"required,gt=0"`

	// SelectBatchSize is how many pending files one coordinator sweep picks up.
	SelectBatchSize int `mapstructure:"select_batch_size" validate:"required,gt=0"`

	// SweepIntervalSeconds controls how often the coordinator looks for
	// files that still need digestion.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" validate:"required,gt=0"`
}

// ChunkerConfig contains tuning knobs for search-document chunking.
// Zero values fall back to the chunker package defaults.
type ChunkerConfig struct {
	TargetTokens     int     `mapstructure:"target_tokens"      validate:"gte=0"`
	MaxTokens        int     `mapstructure:"max_tokens"         validate:"gte=0"`
	OverlapRatio     float64 `mapstructure:"overlap_ratio"      validate:"gte=0,lte=1"`
	MinOverlapTokens int     `mapstructure:"min_overlap_tokens" validate:"gte=0"`
	MaxOverlapTokens int     `mapstructure:"max_overlap_tokens" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings.
// The summary and tags digesters are disabled when no API key is configured.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}
