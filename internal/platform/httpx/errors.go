// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrBadRequest marks malformed request bodies or parameters.
var ErrBadRequest = errors.New("bad request")

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest
	}
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusUnprocessableEntity
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Integrity and unclassified errors are logged and rendered without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed",
				slog.Any("error", err),
				slog.Bool("integrity", shared.IsIntegrity(err)),
				slog.String("code", string(shared.CodeOf(err))))
		}
		Problem(w, status, "Internal Error", "", "")
		return
	}
	detail := err.Error()
	Problem(w, status, http.StatusText(status), detail, string(shared.CodeOf(err)))
}
