package notifx

import "github.com/Abraxas-365/mailroom/pkg/errx"

var notifxErrors = errx.NewRegistry("NOTIFX")

var (
	ErrSendFailed     = notifxErrors.Register("SEND_FAILED", errx.TypeExternal, 0, "Failed to send email")
	ErrSendTimeout    = notifxErrors.Register("SEND_TIMEOUT", errx.TypeExternal, 0, "Email send timed out")
	ErrInvalidMessage = notifxErrors.Register("INVALID_MESSAGE", errx.TypeValidation, 0, "Invalid email message")
	ErrNoProvider     = notifxErrors.Register("NO_PROVIDER", errx.TypeInternal, 0, "No email provider configured")
	ErrNoAccount      = notifxErrors.Register("NO_ACCOUNT", errx.TypeInternal, 0, "No usable sender account")
)

// SendFailed wraps a provider error. Providers use it so that callers see a
// NOTIFX_SEND_FAILED code whatever the backend.
func SendFailed(provider string, cause error) error {
	return notifxErrors.NewWithCause(ErrSendFailed, cause).WithDetail("provider", provider)
}
