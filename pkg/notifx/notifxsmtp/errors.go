package notifxsmtp

import "github.com/Abraxas-365/mailroom/pkg/errx"

var smtpErrors = errx.NewRegistry("NOTIFX_SMTP")

var (
	ErrConnect        = smtpErrors.Register("CONNECT", errx.TypeUnavailable, 0, "Failed to connect SMTP pool")
	ErrUnknownAccount = smtpErrors.Register("UNKNOWN_ACCOUNT", errx.TypeInternal, 0, "No SMTP server configured for account")
)
