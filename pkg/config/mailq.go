package config

import "time"

const (
	RetryManual  = "manual"
	RetryBackoff = "backoff"
)

// MailQueueConfig configures the queue processor.
type MailQueueConfig struct {
	DefaultBatchSize int
	MaxBatchSize     int
	Concurrency      int
	// ClaimLease is how long a claimed message stays in_progress before
	// another processor may take it. Zero disables claiming. It must cover
	// a full batch draining through the pool at the send timeout.
	ClaimLease time.Duration

	RetryPolicy    string
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	MaxAttempts    int
	ProcessJobType string
}

// claimLeaseMargin is added on top of the worst-case batch drain time.
const claimLeaseMargin = time.Minute

// MinClaimLease is the shortest lease under which a batch of MaxBatchSize
// can be sent with every send running to sendTimeout.
func (m MailQueueConfig) MinClaimLease(sendTimeout time.Duration) time.Duration {
	concurrency := max(m.Concurrency, 1)
	rounds := (m.MaxBatchSize + concurrency - 1) / concurrency
	return time.Duration(rounds)*sendTimeout + claimLeaseMargin
}

func loadMailQueueConfig() MailQueueConfig {
	return MailQueueConfig{
		DefaultBatchSize: getEnvInt("MAILQ_BATCH_SIZE", getEnvInt("EMAIL_BATCH_SIZE", 20)),
		MaxBatchSize:     getEnvInt("MAILQ_MAX_BATCH_SIZE", 100),
		Concurrency:      getEnvInt("MAILQ_CONCURRENCY", 5),
		ClaimLease:       getEnvDuration("MAILQ_CLAIM_LEASE", 15*time.Minute),
		RetryPolicy:      getEnv("MAILQ_RETRY_POLICY", RetryManual),
		BackoffBase:      getEnvDuration("MAILQ_BACKOFF_BASE", 15*time.Minute),
		BackoffCap:       getEnvDuration("MAILQ_BACKOFF_CAP", 4*time.Hour),
		MaxAttempts:      getEnvInt("MAILQ_MAX_ATTEMPTS", getEnvInt("EMAIL_MAX_ATTEMPTS", 3)),
		ProcessJobType:   getEnv("MAILQ_PROCESS_JOB_TYPE", "mailq.process_batch"),
	}
}

// TrackingConfig configures the engagement tracker.
type TrackingConfig struct {
	// BaseURL is the public origin tracking links point at.
	BaseURL      string
	Path         string
	WriteTimeout time.Duration
}

func loadTrackingConfig() TrackingConfig {
	return TrackingConfig{
		BaseURL:      getEnv("TRACKING_BASE_URL", getEnv("API_BASE_URL", "http://localhost:8080")),
		Path:         getEnv("TRACKING_PATH", "/track"),
		WriteTimeout: getEnvDuration("TRACKING_WRITE_TIMEOUT", 2*time.Second),
	}
}

// JobxConfig configures the Redis-backed job worker that consumes
// processing triggers.
type JobxConfig struct {
	Enabled           bool
	Concurrency       int
	Queues            []string
	PollInterval      time.Duration
	ShutdownTimeout   time.Duration
	DequeueTimeout    time.Duration
	DefaultRetryDelay time.Duration
}

func loadJobxConfig() JobxConfig {
	return JobxConfig{
		Enabled:           getEnvBool("JOBX_ENABLED", true),
		Concurrency:       getEnvInt("JOBX_CONCURRENCY", 1),
		Queues:            getEnvStringSlice("JOBX_QUEUES", []string{"mail"}),
		PollInterval:      getEnvDuration("JOBX_POLL_INTERVAL", time.Second),
		ShutdownTimeout:   getEnvDuration("JOBX_SHUTDOWN_TIMEOUT", 30*time.Second),
		DequeueTimeout:    getEnvDuration("JOBX_DEQUEUE_TIMEOUT", 5*time.Second),
		DefaultRetryDelay: getEnvDuration("JOBX_DEFAULT_RETRY_DELAY", 30*time.Second),
	}
}
