package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/scan-triage/internal/infrastructure/resilience"
)

const (
	SnapshotBackendFile     = "file"
	SnapshotBackendPostgres = "postgres"

	PurgePolicyRetention = "retention"
	PurgePolicyImmediate = "immediate"
)

type Config struct {
	APIPort  string
	LogLevel string

	DataDir       string
	InboxDir      string
	ReviewDir     string
	ProcessingDir string
	HoldDir       string
	DeletedDir    string

	SnapshotBackend string
	SnapshotPath    string
	PostgresDSN     string

	ClassifierURL        string
	ClassifierTimeout    time.Duration
	AutoProcessThreshold float64
	ReviewThreshold      float64
	CategoryLabelsFile   string

	DiscoveryInterval      time.Duration
	PurgePolicy            string
	RetentionDays          int
	RetentionInterval      time.Duration
	ImmediatePurgeInterval time.Duration
	InboxWatchEnabled      bool

	NATSURL              string
	NATSSubjectPrefix    string
	AutoClassifyOnIngest bool

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIMaxConnections int
	UploadMaxBytes    int64

	Resilience resilience.Config
}

// Load reads the environment. A .env file in the working directory is applied
// first and never overrides variables that are already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "error", err)
	}

	dataDir := mustEnv("DATA_DIR", "./data")
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		DataDir:       dataDir,
		InboxDir:      mustEnv("INBOX_DIR", filepath.Join(dataDir, "inbox")),
		ReviewDir:     mustEnv("REVIEW_DIR", filepath.Join(dataDir, "needs-review")),
		ProcessingDir: mustEnv("PROCESSING_DIR", filepath.Join(dataDir, "processing")),
		HoldDir:       mustEnv("HOLD_DIR", filepath.Join(dataDir, "hold")),
		DeletedDir:    mustEnv("DELETED_DIR", filepath.Join(dataDir, "deleted")),

		SnapshotBackend: strings.ToLower(mustEnv("SNAPSHOT_BACKEND", SnapshotBackendFile)),
		SnapshotPath:    mustEnv("SNAPSHOT_PATH", filepath.Join(dataDir, "documents.json")),
		PostgresDSN:     mustEnv("POSTGRES_DSN", ""),

		ClassifierURL:        mustEnv("CLASSIFIER_URL", "http://localhost:8000"),
		ClassifierTimeout:    time.Duration(mustEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 20)) * time.Second,
		AutoProcessThreshold: mustEnvFloat("AUTO_PROCESS_THRESHOLD", 0.80),
		ReviewThreshold:      mustEnvFloat("REVIEW_THRESHOLD", 0.60),
		CategoryLabelsFile:   mustEnv("CATEGORY_LABELS_FILE", ""),

		DiscoveryInterval:      mustEnvDuration("DISCOVERY_INTERVAL", 5*time.Second),
		PurgePolicy:            strings.ToLower(mustEnv("PURGE_POLICY", PurgePolicyRetention)),
		RetentionDays:          mustEnvInt("RETENTION_DAYS", 30),
		RetentionInterval:      mustEnvDuration("RETENTION_INTERVAL", 6*time.Hour),
		ImmediatePurgeInterval: mustEnvDuration("IMMEDIATE_PURGE_INTERVAL", 60*time.Second),
		InboxWatchEnabled:      mustEnvBool("INBOX_WATCH_ENABLED", true),

		NATSURL:              mustEnv("NATS_URL", ""),
		NATSSubjectPrefix:    mustEnv("NATS_SUBJECT_PREFIX", "documents"),
		AutoClassifyOnIngest: mustEnvBool("AUTO_CLASSIFY_ON_INGEST", false),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIMaxConnections: mustEnvInt("API_MAX_CONNECTIONS", 256),
		UploadMaxBytes:    int64(mustEnvInt("UPLOAD_MAX_BYTES", 32<<20)),

		Resilience: loadResilience(),
	}
}

func loadResilience() resilience.Config {
	def := resilience.DefaultConfig()
	return resilience.Config{
		RetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", def.RetryMaxAttempts),
		RetryInitialBackoff: mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", def.RetryInitialBackoff),
		RetryMaxBackoff:     mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", def.RetryMaxBackoff),
		RetryMultiplier:     mustEnvFloat("RESILIENCE_RETRY_MULTIPLIER", def.RetryMultiplier),

		BreakerEnabled:          mustEnvBool("RESILIENCE_BREAKER_ENABLED", def.BreakerEnabled),
		BreakerMinRequests:      uint32(mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", int(def.BreakerMinRequests))),
		BreakerFailureRatio:     mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", def.BreakerFailureRatio),
		BreakerOpenTimeout:      mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", def.BreakerOpenTimeout),
		BreakerHalfOpenMaxCalls: uint32(mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", int(def.BreakerHalfOpenMaxCalls))),
	}
}

// APIWriteTimeout bounds every HTTP response of the api process.
const APIWriteTimeout = 60 * time.Second

// Validate rejects combinations the lifecycle cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.ReviewThreshold < 0 || c.AutoProcessThreshold > 1 || c.ReviewThreshold >= c.AutoProcessThreshold {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= REVIEW_THRESHOLD (%v) < AUTO_PROCESS_THRESHOLD (%v) <= 1",
			c.ReviewThreshold, c.AutoProcessThreshold))
	}
	switch c.SnapshotBackend {
	case SnapshotBackendFile:
	case SnapshotBackendPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres snapshot backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend))
	}
	switch c.PurgePolicy {
	case PurgePolicyRetention:
		if c.RetentionDays <= 0 {
			errs = append(errs, fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays))
		}
	case PurgePolicyImmediate:
	default:
		errs = append(errs, fmt.Errorf("unknown PURGE_POLICY %q", c.PurgePolicy))
	}
	if budget := c.Resilience.Budget(c.ClassifierTimeout); budget >= APIWriteTimeout {
		errs = append(errs, fmt.Errorf("classifier retry budget %s (CLASSIFIER_TIMEOUT_SECONDS x RESILIENCE_RETRY_MAX_ATTEMPTS plus backoff) must stay below the %s response timeout",
			budget, APIWriteTimeout))
	}
	if c.DiscoveryInterval < time.Second {
		errs = append(errs, fmt.Errorf("DISCOVERY_INTERVAL must be at least 1s, got %s", c.DiscoveryInterval))
	}
	if c.AutoClassifyOnIngest && c.NATSURL == "" {
		errs = append(errs, errors.New("AUTO_CLASSIFY_ON_INGEST requires NATS_URL"))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.UploadMaxBytes))
	}
	return errors.Join(errs...)
}

// PurgeWindow is how long a deleted document is kept; zero purges on the next pass.
func (c Config) PurgeWindow() time.Duration {
	if c.PurgePolicy == PurgePolicyImmediate {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c Config) PurgeInterval() time.Duration {
	if c.PurgePolicy == PurgePolicyImmediate {
		return c.ImmediatePurgeInterval
	}
	return c.RetentionInterval
}

// LoadCategoryLabels overlays the YAML mapping at path onto defaults. Keys
// are upper-cased classifier kinds; an empty path returns defaults unchanged.
func LoadCategoryLabels(path string, defaults map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	if strings.TrimSpace(path) == "" {
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category labels: %w", err)
	}
	var labels map[string]string
	if err := yaml.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("parse category labels %s: %w", path, err)
	}
	for kind, label := range labels {
		kind = strings.ToUpper(strings.TrimSpace(kind))
		label = strings.TrimSpace(label)
		if kind == "" || label == "" {
			continue
		}
		out[kind] = label
	}
	return out, nil
}

func mustEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
