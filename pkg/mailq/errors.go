package mailq

import (
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
)

var mailqErrors = errx.NewRegistry("MAILQ")

var (
	ErrInvalidMessage   = mailqErrors.Register("INVALID_MESSAGE", errx.TypeValidation, 0, "Invalid queued message")
	ErrInvalidBatchSize = mailqErrors.Register("INVALID_BATCH_SIZE", errx.TypeValidation, 0, "batchSize must be a positive integer")
	ErrInvalidStatus    = mailqErrors.Register("INVALID_STATUS", errx.TypeValidation, 0, "Unknown message status")
	ErrMessageNotFound  = mailqErrors.Register("MESSAGE_NOT_FOUND", errx.TypeNotFound, 0, "Queued message not found")
	ErrClaimLost        = mailqErrors.Register("CLAIM_LOST", errx.TypeConflict, 0, "Message is no longer claimed by this processor")
	ErrFetchFailed      = mailqErrors.Register("FETCH_FAILED", errx.TypeInternal, 0, "Failed to fetch due messages")
	ErrStoreFailed      = mailqErrors.Register("STORE_FAILED", errx.TypeInternal, 0, "Message queue store operation failed")
	ErrAsyncDisabled    = mailqErrors.Register("ASYNC_DISABLED", errx.TypeUnavailable, 0, "Asynchronous processing is not configured")
	ErrJobNotFound      = mailqErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 0, "Processing job not found")
)

// NotFound is the error returned for an unknown message id.
func NotFound(id string) error {
	return mailqErrors.New(ErrMessageNotFound).WithDetail("id", id)
}

// ClaimLost is returned when a state write no longer matches the claim it was
// made under.
func ClaimLost(c Claim) error {
	e := mailqErrors.New(ErrClaimLost).WithDetail("id", c.ID.String())
	if c.Claimed() {
		e = e.WithDetail("claimed_until", c.Until.UTC().Format(time.RFC3339Nano))
	}
	return e
}

// StoreFailed wraps a backend failure of op.
func StoreFailed(op string, cause error) *errx.Error {
	return mailqErrors.NewWithCause(ErrStoreFailed, cause).WithDetail("op", op)
}

// FetchFailed wraps a failure to read the due batch.
func FetchFailed(cause error) error {
	return mailqErrors.NewWithCause(ErrFetchFailed, cause)
}

// InvalidBatchSize is returned for a non-positive or malformed batchSize.
func InvalidBatchSize(raw string) error {
	return mailqErrors.New(ErrInvalidBatchSize).WithDetail("batchSize", raw)
}

// InvalidStatus is returned by list filters naming an unknown status.
func InvalidStatus(s string) error {
	return mailqErrors.New(ErrInvalidStatus).WithDetail("status", s)
}

// AsyncDisabled is returned when no job queue is configured.
func AsyncDisabled() error {
	return mailqErrors.New(ErrAsyncDisabled)
}

// JobNotFound wraps a missing job id.
func JobNotFound(id string, cause error) error {
	return mailqErrors.NewWithCause(ErrJobNotFound, cause).WithDetail("job_id", id)
}
