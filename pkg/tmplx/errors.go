package tmplx

import "github.com/Abraxas-365/mailroom/pkg/errx"

var tmplxErrors = errx.NewRegistry("TMPLX")

var (
	ErrTemplateNotFound = tmplxErrors.Register("TEMPLATE_NOT_FOUND", errx.TypeNotFound, 0, "Email template not found")
	ErrInvalidPreview   = tmplxErrors.Register("INVALID_PREVIEW", errx.TypeValidation, 0, "Invalid preview request")
	ErrInvalidID        = tmplxErrors.Register("INVALID_ID", errx.TypeValidation, 0, "Invalid template id")
	ErrStore            = tmplxErrors.Register("STORE", errx.TypeInternal, 0, "Template store failed")
)

// NotFound is the error stores return for an unknown template id.
func NotFound(id string) error {
	return tmplxErrors.New(ErrTemplateNotFound).WithDetail("template_id", id)
}

// StoreError wraps a backend failure while reading template id.
func StoreError(id string, cause error) error {
	return tmplxErrors.NewWithCause(ErrStore, cause).WithDetail("template_id", id)
}

// InvalidID is returned for ids that are not safe store keys.
func InvalidID(id string) error {
	return tmplxErrors.New(ErrInvalidID).WithDetail("template_id", id)
}
