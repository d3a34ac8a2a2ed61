package web

// errors.go maps service errors to HTTP responses.
//
// Every error is logged with its full text and the request id, then sent to
// the client as {error, message, action, code} using core.MapError. Caller
// mistakes log at Warn, everything else at Error.

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/Werdo/ose-platform-sub000/internal/core"
	"github.com/Werdo/ose-platform-sub000/internal/logging"
)

var errRateLimited = errors.New("rate limit exceeded")

// retryAfterBusy is sent with 503 responses when no generation slot frees up.
const retryAfterBusy = 5

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrBatchTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidFormat),
		errors.Is(err, core.ErrLengthMismatch),
		errors.Is(err, core.ErrEmptyOrInvertedRange),
		errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateBatch):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyGenerations),
		errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client is gone; the status is only seen in the access log.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped JSON error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ue := core.NewUserError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", ue.User.Code,
		"error", ue.Technical.Error(),
	}
	if core.IsCallerError(err) {
		logger.Warn("request rejected", attrs...)
	} else {
		logger.Error("request failed", attrs...)
	}

	if errors.Is(ue, core.ErrTooManyGenerations) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterBusy))
	}
	respondErrorJSON(w, ue.User, status)
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// clientKey strips the port from a remote address.
func clientKey(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
