package web

// errors.go turns service errors into HTTP responses.
//
// Every error is:
//   - mapped to a status code by statusFor
//   - mapped to a coded user message by core.MapError
//   - logged with its technical detail and the request id
//
// Rows refused at confirm are returned in full under "errors" so the
// client can show them without uploading again.

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

var (
	errNoFile     = errors.New("no file provided")
	errBadRequest = errors.New("invalid request body")
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error   string                    `json:"error"`
	Message string                    `json:"message"`
	Action  string                    `json:"action,omitempty"`
	Code    string                    `json:"code"`
	Errors  []core.RowValidationError `json:"errors,omitempty"`
}

// busyRetryAfter is sent with 503 responses, in seconds.
const busyRetryAfter = "5"

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var batchErr *core.BatchValidationError
	switch {
	case errors.As(err, &batchErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnknownModule), errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrJobTerminal), errors.Is(err, core.ErrJobNotClaimable):
		return http.StatusConflict
	case errors.Is(err, core.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileFormat),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrTooManyRows),
		errors.Is(err, core.ErrEmptyBatch),
		errors.Is(err, errNoFile),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its JSON error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	log := logger.Info
	if status >= http.StatusInternalServerError {
		log = logger.Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var batchErr *core.BatchValidationError
	if errors.As(err, &batchErr) {
		resp.Errors = batchErr.Errors
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", busyRetryAfter)
	}
	writeJSON(w, status, resp)
}
