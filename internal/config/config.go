package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oppidan-dev/pg-backup-restore/internal/pgpass"
	"github.com/oppidan-dev/pg-backup-restore/internal/retention"
	"github.com/oppidan-dev/pg-backup-restore/internal/retry"
)

// Check identifies one precondition of the fail-fast validation gate. Each
// check maps to its own process exit status so a scheduler can tell "no DB
// credentials" from "no storage credentials" without reading logs.
type Check int

const (
	CheckDatabaseAuth Check = iota
	CheckStorageKeys
	CheckStorageRegion
	CheckStorageBucket
)

// MissingFieldError names exactly which required value is absent.
type MissingFieldError struct {
	Check  Check
	Name   string
	Detail string
}

func (e *MissingFieldError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("missing required configuration %s: %s", e.Name, e.Detail)
	}
	return fmt.Sprintf("missing required configuration: %s is not set", e.Name)
}

// ConnectionProfile addresses and authenticates against the database.
type ConnectionProfile struct {
	Host     string
	Port     string
	User     string
	Database string

	// Password is the explicit secret (PGPASSWORD); when empty the
	// credential file at PassFile is the fallback. Never logged.
	Password string
	PassFile string
}

// StorageConfig addresses the S3-compatible object storage account. The
// storage is region-less: Region carries the provider's sentinel token
// ("auto") rather than a real region.
type StorageConfig struct {
	AccountID       string
	Bucket          string
	PathPrefix      string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
}

// EndpointURL resolves the per-account endpoint, honoring an explicit
// S3_ENDPOINT override.
func (s StorageConfig) EndpointURL() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.AccountID)
}

// AzureConfig configures the alternative Azure Blob backend.
type AzureConfig struct {
	Account   string
	Container string
	SASToken  string

	ClientID     string
	ClientSecret string
	TenantID     string
}

type Config struct {
	Provider string

	DB      ConnectionProfile
	Storage StorageConfig
	Azure   AzureConfig

	// Per-run local working areas.
	BackupDir  string
	RestoreDir string

	// Local retention. The original scripts purged the backup directory
	// unconditionally; keep-on-failure is the default here and
	// CLEANUP_ON_FAILURE=delete restores the old behavior.
	CleanupOnSuccess retention.Action
	CleanupOnFailure retention.Action
	RestoreCleanup   bool

	// Per-stage deadlines for the blocking pipeline steps.
	DumpTimeout     time.Duration
	ApplyTimeout    time.Duration
	TransferTimeout time.Duration

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryEnableJitter bool
}

// Load reads config from environment variables, applies defaults and
// validates. All parameters come from the environment by contract: the
// backup invocation takes no arguments.
func Load() (Config, error) {
	get := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	parseInt := func(key string, def int) int {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				return n
			}
		}
		return def
	}

	parseDur := func(key string, def time.Duration) time.Duration {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
		return def
	}

	parseFloat := func(key string, def float64) float64 {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				return f
			}
		}
		return def
	}

	parseBool := func(key string, def bool) bool {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "y", "on":
				return true
			case "0", "false", "no", "n", "off":
				return false
			}
		}
		return def
	}

	user := get("PGUSER", "postgres")
	cfg := Config{
		Provider: strings.ToLower(get("BACKUP_PROVIDER", "s3")),

		DB: ConnectionProfile{
			Host:     get("PGHOST", "localhost"),
			Port:     get("PGPORT", "5432"),
			User:     user,
			Database: get("PGDATABASE", user),
			Password: os.Getenv("PGPASSWORD"),
			PassFile: get("PGPASSFILE", pgpass.DefaultPath()),
		},

		Storage: StorageConfig{
			AccountID:       get("S3_ACCOUNT_ID", ""),
			Bucket:          get("S3_BUCKET", ""),
			PathPrefix:      get("S3_PATH_PREFIX", ""),
			AccessKeyID:     get("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: get("S3_SECRET_ACCESS_KEY", ""),
			Region:          get("S3_REGION", ""),
			Endpoint:        get("S3_ENDPOINT", ""),
		},

		Azure: AzureConfig{
			Account:      get("AZURE_STORAGE_ACCOUNT", ""),
			Container:    get("AZURE_STORAGE_CONTAINER", ""),
			SASToken:     get("AZURE_STORAGE_SAS", ""),
			ClientID:     get("AZURE_CLIENT_ID", ""),
			ClientSecret: get("AZURE_CLIENT_SECRET", ""),
			TenantID:     get("AZURE_TENANT_ID", ""),
		},

		BackupDir:  get("BACKUP_DIR", filepath.Join(os.TempDir(), "pg-backups")),
		RestoreDir: get("RESTORE_DIR", filepath.Join(os.TempDir(), "pg-restore")),

		CleanupOnSuccess: retention.ParseAction(strings.ToLower(get("CLEANUP_ON_SUCCESS", "delete")), retention.Delete),
		CleanupOnFailure: retention.ParseAction(strings.ToLower(get("CLEANUP_ON_FAILURE", "keep")), retention.Keep),
		RestoreCleanup:   parseBool("RESTORE_CLEANUP", false),

		DumpTimeout:     parseDur("DUMP_TIMEOUT", 15*time.Minute),
		ApplyTimeout:    parseDur("APPLY_TIMEOUT", 30*time.Minute),
		TransferTimeout: parseDur("TRANSFER_TIMEOUT", 30*time.Minute),

		RetryMaxAttempts:  parseInt("RETRY_MAX_ATTEMPTS", retry.Default.MaxAttempts),
		RetryInitialDelay: parseDur("RETRY_INITIAL_DELAY", retry.Default.InitialDelay),
		RetryMaxDelay:     parseDur("RETRY_MAX_DELAY", retry.Default.MaxDelay),
		RetryMultiplier:   parseFloat("RETRY_MULTIPLIER", retry.Default.Multiplier),
		RetryEnableJitter: parseBool("RETRY_JITTER", retry.Default.Jitter),
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate is the pure precondition gate: no side effects, fail fast with a
// typed error naming the first missing value. Checks run in a fixed order
// (database auth, storage keys, region token, account/bucket) so the exit
// status is deterministic when several values are absent.
func Validate(c Config) error {
	// 1) Database authentication: explicit secret or readable credential file.
	if strings.TrimSpace(c.DB.Password) == "" && !pgpass.FileReadable(c.DB.PassFile) {
		return &MissingFieldError{
			Check:  CheckDatabaseAuth,
			Name:   "PGPASSWORD",
			Detail: fmt.Sprintf("not set and no credential file readable at %s", c.DB.PassFile),
		}
	}

	switch c.Provider {
	case "s3":
		// 2) Object-storage access keys.
		if c.Storage.AccessKeyID == "" {
			return &MissingFieldError{Check: CheckStorageKeys, Name: "S3_ACCESS_KEY_ID"}
		}
		if c.Storage.SecretAccessKey == "" {
			return &MissingFieldError{Check: CheckStorageKeys, Name: "S3_SECRET_ACCESS_KEY"}
		}
		// 3) Region/mode token ("auto" for region-less storage).
		if c.Storage.Region == "" {
			return &MissingFieldError{Check: CheckStorageRegion, Name: "S3_REGION"}
		}
		// 4) Account identifier and bucket.
		if c.Storage.AccountID == "" && c.Storage.Endpoint == "" {
			return &MissingFieldError{
				Check:  CheckStorageBucket,
				Name:   "S3_ACCOUNT_ID",
				Detail: "not set and no S3_ENDPOINT override given",
			}
		}
		if c.Storage.Bucket == "" {
			return &MissingFieldError{Check: CheckStorageBucket, Name: "S3_BUCKET"}
		}

	case "azure":
		if c.Azure.SASToken == "" && (c.Azure.ClientID == "" || c.Azure.ClientSecret == "" || c.Azure.TenantID == "") {
			return &MissingFieldError{
				Check:  CheckStorageKeys,
				Name:   "AZURE_STORAGE_SAS",
				Detail: "not set and no service principal credentials given",
			}
		}
		if c.Azure.Account == "" {
			return &MissingFieldError{Check: CheckStorageBucket, Name: "AZURE_STORAGE_ACCOUNT"}
		}
		if c.Azure.Container == "" {
			return &MissingFieldError{Check: CheckStorageBucket, Name: "AZURE_STORAGE_CONTAINER"}
		}

	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	return nil
}

// RetryOptions converts retry-related config values to retry.Options.
func (c Config) RetryOptions() retry.Options {
	return retry.Options{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
		Multiplier:   c.RetryMultiplier,
		Jitter:       c.RetryEnableJitter,
	}
}

// RetentionPolicy converts the cleanup config to a retention policy for the
// backup pipeline's working directory.
func (c Config) RetentionPolicy() retention.Policy {
	return retention.Policy{
		OnSuccess: c.CleanupOnSuccess,
		OnFailure: c.CleanupOnFailure,
	}
}
