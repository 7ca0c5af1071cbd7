package model

// Error kinds returned in the machine-checkable "kind" field of error
// responses. Authentication failures are deliberately coarse so callers
// cannot probe whether a given key exists.
const (
	KindUnauthorized    = "unauthorized"
	KindKeyRevoked      = "key_revoked"
	KindBadRequest      = "bad_request"
	KindNotFound        = "not_found"
	KindForbidden       = "forbidden"
	KindUpstreamFailure = "upstream_failure"
	KindInternalError   = "internal_error"
)

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
// No stack traces or internal state are ever included.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}
