package trakt

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusNetworkError is the pseudo-status assigned to transport-level
// failures where no HTTP response was received at all.
const StatusNetworkError = 0

// statusMessages maps the tracking service's documented status codes to
// stable human-readable messages.
var statusMessages = map[int]string{
	StatusNetworkError:             "Network Error - no response received",
	http.StatusBadRequest:          "Bad Request - request couldn't be parsed",
	http.StatusUnauthorized:        "Unauthorized - OAuth must be provided",
	http.StatusForbidden:           "Forbidden - invalid API key or unapproved app",
	http.StatusNotFound:            "Not Found - method exists, but no record found",
	http.StatusMethodNotAllowed:    "Method Not Found - method doesn't exist",
	http.StatusConflict:            "Conflict - resource already created",
	http.StatusPreconditionFailed:  "Precondition Failed - use application/json content type",
	http.StatusUnprocessableEntity: "Unprocessable Entity - validation errors",
	http.StatusTooManyRequests:     "Rate Limit Exceeded",
	http.StatusInternalServerError: "Server Error - please open a support issue",
	http.StatusServiceUnavailable:  "Service Unavailable - server overloaded (try again in 30s)",
	http.StatusGatewayTimeout:      "Service Unavailable - server overloaded (try again in 30s)",
	520:                            "Service Unavailable - Cloudflare error",
	521:                            "Service Unavailable - Cloudflare error",
	522:                            "Service Unavailable - Cloudflare error",
}

// Error is a classified failure from the tracking service: the HTTP status
// (or StatusNetworkError when no response arrived) plus a stable message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("trakt: %d %s", e.Status, e.Message)
}

// classifyStatus maps an HTTP status to a classified Error, or nil for the
// success variants. Unrecognized statuses synthesize an error carrying the
// raw status and its standard status text.
func classifyStatus(status int) *Error {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	}
	if msg, ok := statusMessages[status]; ok {
		return &Error{Status: status, Message: msg}
	}
	text := http.StatusText(status)
	if text == "" {
		text = "Unknown Error"
	}
	return &Error{Status: status, Message: text}
}

// networkError classifies a transport failure under the network pseudo-status.
func networkError(err error) *Error {
	return &Error{Status: StatusNetworkError, Message: statusMessages[StatusNetworkError] + ": " + err.Error()}
}

// IsStatus reports whether err is a classified Error with the given status.
func IsStatus(err error, status int) bool {
	var terr *Error
	return errors.As(err, &terr) && terr.Status == status
}

// IsNotFound reports whether err is the service's not-found outcome.
func IsNotFound(err error) bool { return IsStatus(err, http.StatusNotFound) }

// IsConflict reports whether err is the already-scrobbled conflict outcome.
func IsConflict(err error) bool { return IsStatus(err, http.StatusConflict) }
