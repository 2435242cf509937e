package tracking

import "github.com/Abraxas-365/mailroom/pkg/errx"

var trackingErrors = errx.NewRegistry("TRACKING")

var (
	ErrMissingID    = trackingErrors.Register("MISSING_ID", errx.TypeValidation, 0, "Email id is required")
	ErrInvalidEvent = trackingErrors.Register("INVALID_EVENT", errx.TypeValidation, 0, "event must be open or click")
	ErrMissingURL   = trackingErrors.Register("MISSING_URL", errx.TypeValidation, 0, "url is required for click events")
	ErrWriteFailed  = trackingErrors.Register("WRITE_FAILED", errx.TypeInternal, 0, "Failed to record tracking event")
)

// WriteFailed wraps a store failure.
func WriteFailed(cause error) error {
	return trackingErrors.NewWithCause(ErrWriteFailed, cause)
}

func MissingID() error {
	return trackingErrors.New(ErrMissingID)
}

func MissingURL() error {
	return trackingErrors.New(ErrMissingURL).WithDetail("event", string(EventClick))
}
