package notifxses

import "github.com/Abraxas-365/mailroom/pkg/errx"

var sesErrors = errx.NewRegistry("NOTIFX_SES")

var (
	ErrSendFailed = sesErrors.Register("SEND_FAILED", errx.TypeExternal, 0, "SES send email failed")
)
