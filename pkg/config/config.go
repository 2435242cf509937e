package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/joho/godotenv"
)

var configErrors = errx.NewRegistry("CONFIG")

var (
	ErrInvalid      = configErrors.Register("INVALID", errx.TypeValidation, 0, "Invalid configuration")
	ErrAccountsFile = configErrors.Register("ACCOUNTS_FILE", errx.TypeInternal, 0, "Failed to load sender accounts file")
)

// Config is the full process configuration, built once in main and passed
// down explicitly.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Notifx    NotifxConfig
	MailQueue MailQueueConfig
	Tracking  TrackingConfig
	Jobx      JobxConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
	Version     string
	BaseURL     string
	Debug       bool
	// ProxyHeader is trusted for the client IP, e.g. X-Forwarded-For.
	ProxyHeader string
}

type DatabaseConfig struct {
	// Mode is "postgres" or "memory". Memory is for local development only.
	Mode            string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DSN returns a lib/pq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type StorageConfig struct {
	// Mode is "local" or "s3".
	Mode      string
	LocalDir  string
	AWSRegion string
	Bucket    string
	Prefix    string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, configErrors.NewWithCause(ErrInvalid, err).WithDetail("file", ".env")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			BaseURL:     strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
			Debug:       getEnvBool("DEBUG", false),
			ProxyHeader: getEnv("PROXY_HEADER", ""),
		},
		Database: DatabaseConfig{
			Mode:            getEnv("DATABASE_MODE", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "mailroom"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Mode:      getEnv("STORAGE_MODE", "local"),
			LocalDir:  getEnv("UPLOAD_DIR", "./storage"),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
			Bucket:    getEnv("AWS_BUCKET", "mailroom-templates"),
			Prefix:    getEnv("AWS_BUCKET_PREFIX", ""),
		},
		MailQueue: loadMailQueueConfig(),
		Tracking:  loadTrackingConfig(),
		Jobx:      loadJobxConfig(),
	}

	notifx, err := loadNotifxConfig()
	if err != nil {
		return nil, err
	}
	cfg.Notifx = notifx

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration faults that would otherwise surface on the
// first send or request.
func (c *Config) Validate() error {
	fail := func(field, reason string) error {
		return configErrors.New(ErrInvalid).WithDetail("field", field).WithDetail("reason", reason)
	}

	switch c.Database.Mode {
	case "postgres", "memory":
	default:
		return fail("DATABASE_MODE", "must be postgres or memory")
	}
	switch c.Storage.Mode {
	case "local", "s3":
	default:
		return fail("STORAGE_MODE", "must be local or s3")
	}
	if err := c.Notifx.validate(); err != nil {
		return err
	}
	if c.MailQueue.DefaultBatchSize <= 0 {
		return fail("MAILQ_BATCH_SIZE", "must be positive")
	}
	if c.MailQueue.MaxBatchSize < c.MailQueue.DefaultBatchSize {
		return fail("MAILQ_MAX_BATCH_SIZE", "must be >= MAILQ_BATCH_SIZE")
	}
	if c.MailQueue.Concurrency <= 0 {
		return fail("MAILQ_CONCURRENCY", "must be positive")
	}
	if c.MailQueue.ClaimLease < 0 {
		return fail("MAILQ_CLAIM_LEASE", "must not be negative")
	}
	if lease := c.MailQueue.ClaimLease; lease > 0 {
		if floor := c.MailQueue.MinClaimLease(c.Notifx.SendTimeout); lease < floor {
			return fail("MAILQ_CLAIM_LEASE", fmt.Sprintf("must be at least %s for MAILQ_MAX_BATCH_SIZE=%d, MAILQ_CONCURRENCY=%d and NOTIFX_SEND_TIMEOUT=%s",
				floor, c.MailQueue.MaxBatchSize, c.MailQueue.Concurrency, c.Notifx.SendTimeout))
		}
	}
	switch c.MailQueue.RetryPolicy {
	case RetryManual, RetryBackoff:
	default:
		return fail("MAILQ_RETRY_POLICY", "must be manual or backoff")
	}
	return nil
}

// ---------------------------------------------------------------------------
// env helpers
// ---------------------------------------------------------------------------

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
