package errx

import "net/http"

// HTTPErrorResponse is the JSON body written for a failed request.
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Type      string         `json:"type"`
	Status    int            `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Cause     string         `json:"underlying_error,omitempty"`
}

// Response converts any error into a status code and response body. Errors
// that are not *Error become a generic 500 so internals do not leak.
// includeCause adds the wrapped error text (debug mode only).
func Response(err error, requestID string, includeCause bool) (int, HTTPErrorResponse) {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError, HTTPErrorResponse{
			Error:     "Internal Server Error",
			Code:      "INTERNAL_ERROR",
			Type:      string(TypeInternal),
			Status:    http.StatusInternalServerError,
			RequestID: requestID,
		}
	}

	resp := HTTPErrorResponse{
		Error:     e.Message,
		Code:      e.Code,
		Type:      string(e.Type),
		Status:    e.HTTPStatus,
		RequestID: requestID,
	}
	if len(e.Details) > 0 {
		resp.Details = e.Details
	}
	if includeCause && e.Err != nil {
		resp.Cause = e.Err.Error()
	}
	return e.HTTPStatus, resp
}
