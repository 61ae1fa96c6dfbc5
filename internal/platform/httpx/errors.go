// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// ErrorBody is the structured error payload returned to API callers.
type ErrorBody struct {
	Error string      `json:"error"`
	Kind  shared.Kind `json:"kind,omitempty"`
	Code  string      `json:"code,omitempty"`
	Count int         `json:"count,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindPrecondition, shared.KindToleranceExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondError renders classified domain errors as {error, kind}. Anything
// else is logged and reported as an opaque internal error.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *shared.Error
	if errors.As(err, &de) {
		JSON(w, StatusFor(de.Kind), ErrorBody{Error: de.Error(), Kind: de.Kind, Code: de.Code, Count: de.Count})
		return
	}
	if logger != nil {
		logger.Error("unhandled request error", slog.Any("error", err))
	}
	JSON(w, http.StatusInternalServerError, ErrorBody{Error: http.StatusText(http.StatusInternalServerError)})
}
