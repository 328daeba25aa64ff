package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with the technical details and the request ID (server-side)
//   - Returned to the client as core.MapError's user message, with a code
//
// Handlers call respondError(w, r, err) and let statusFor pick the status.
// Errors raised after an event stream started are sent as an "error" event
// instead (see sse.go).

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/ingest"
	"github.com/JonMunkholm/jsonview/internal/logging"
	"github.com/JonMunkholm/jsonview/internal/paging"
	"github.com/JonMunkholm/jsonview/internal/search"
)

var (
	errInvalidRequest = errors.New("invalid request")
	errNoFile         = errors.New("no file provided")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user message with the status
// statusFor chooses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := logger.Warn
	if status >= http.StatusInternalServerError {
		level = logger.Error
	}
	level("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, r, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, core.ErrPathNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, core.ErrTooManySessions), errors.Is(err, ingest.ErrTooManyIngests):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrIngestCancelled):
		return http.StatusConflict
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, errNoFile),
		errors.Is(err, paging.ErrInvalidOffset),
		errors.Is(err, search.ErrEmptyTerm),
		errors.Is(err, ingest.ErrEmptyInput),
		errors.Is(err, ingest.ErrNotRegularFile),
		errors.Is(err, ingest.ErrUnsupportedCodec):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Join(errInvalidRequest, err)
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Join(errInvalidRequest, err)
	}
	return b, nil
}
