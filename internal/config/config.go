package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"sourcefetch"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"sourcefetch"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	WeaviateHost    string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme  string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	EnablePostIndex bool   `envconfig:"ENABLE_POST_INDEX" default:"false"`

	// Roles
	EnableAPI          bool     `envconfig:"ENABLE_API" default:"true"`
	EnableScheduler    bool     `envconfig:"ENABLE_SCHEDULER" default:"true"`
	EnableOrchestrator bool     `envconfig:"ENABLE_ORCHESTRATOR" default:"true"`
	EnableIngestor     bool     `envconfig:"ENABLE_INGESTOR" default:"true"`
	Collectors         []string `envconfig:"COLLECTORS" default:"api,rss,scraper"`
	CollectorsFile     string   `envconfig:"COLLECTORS_FILE" default:"collectors.yaml"`
	MigrationPath      string   `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Priority calculator
	PriorityTick          time.Duration `envconfig:"PRIORITY_TICK" default:"5m"`
	PriorityMinInterval   time.Duration `envconfig:"PRIORITY_MIN_INTERVAL" default:"5m"`
	PriorityMaxInterval   time.Duration `envconfig:"PRIORITY_MAX_INTERVAL" default:"6h"`
	PriorityBaseInterval  time.Duration `envconfig:"PRIORITY_BASE_INTERVAL" default:"30m"`
	RecencySaturation     time.Duration `envconfig:"PRIORITY_RECENCY_SATURATION" default:"1h"`
	RecencyWeight         float64       `envconfig:"PRIORITY_RECENCY_WEIGHT" default:"1.0"`
	FollowerWeight        float64       `envconfig:"PRIORITY_FOLLOWER_WEIGHT" default:"0.25"`
	YieldWeight           float64       `envconfig:"PRIORITY_YIELD_WEIGHT" default:"0.1"`
	ErrorDampening        float64       `envconfig:"PRIORITY_ERROR_DAMPENING" default:"0.5"`
	ErroredCooldown       time.Duration `envconfig:"PRIORITY_ERRORED_COOLDOWN" default:"1h"`
	SkipNotDue            bool          `envconfig:"PRIORITY_SKIP_NOT_DUE" default:"false"`
	PriorityLeaseKey      string        `envconfig:"PRIORITY_LEASE_KEY" default:"priority-calculator"`
	OrchestratorPoolSize  int           `envconfig:"ORCHESTRATOR_CONCURRENCY" default:"2"`
	IngestorPoolSize      int           `envconfig:"INGESTOR_CONCURRENCY" default:"4"`
	DefaultPageSize       int           `envconfig:"DEFAULT_PAGE_SIZE" default:"50"`
	ErrorThreshold        float64       `envconfig:"ERROR_THRESHOLD" default:"5"`
	RetryableErrorWeight  float64       `envconfig:"RETRYABLE_ERROR_WEIGHT" default:"0.5"`
	CASMaxRetries         int           `envconfig:"CAS_MAX_RETRIES" default:"5"`

	// Queue retry policy
	JobMaxAttempts   int           `envconfig:"JOB_MAX_ATTEMPTS" default:"5"`
	JobBackoffBase   time.Duration `envconfig:"JOB_BACKOFF_BASE" default:"2s"`
	JobBackoffMax    time.Duration `envconfig:"JOB_BACKOFF_MAX" default:"5m"`
	JobTimeout       time.Duration `envconfig:"JOB_TIMEOUT" default:"2m"`
	// NSQMaxMsgTimeout must match nsqd's --max-msg-timeout.
	NSQMaxMsgTimeout time.Duration `envconfig:"NSQ_MAX_MSG_TIMEOUT" default:"15m"`

	// Server
	ServerPort int    `envconfig:"SERVER_PORT" default:"8081"`
	UserAgent  string `envconfig:"HTTP_USER_AGENT" default:"sourcefetch/1.0"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.PriorityMinInterval > c.PriorityMaxInterval {
		return fmt.Errorf("%w: PRIORITY_MIN_INTERVAL exceeds PRIORITY_MAX_INTERVAL", ErrInvalid)
	}
	if c.ErrorThreshold <= 0 {
		return fmt.Errorf("%w: ERROR_THRESHOLD must be positive", ErrInvalid)
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("%w: JOB_MAX_ATTEMPTS must be at least 1", ErrInvalid)
	}
	if c.NSQMaxMsgTimeout > 0 && c.JobTimeout >= c.NSQMaxMsgTimeout {
		return fmt.Errorf("%w: JOB_TIMEOUT must be below NSQ_MAX_MSG_TIMEOUT", ErrInvalid)
	}
	return nil
}
