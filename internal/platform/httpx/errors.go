// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/odyssey-erp/docledger/internal/shared"
)

// StatusFor maps the error taxonomy to an HTTP status code.
func StatusFor(err error) int {
	switch shared.Kind(err) {
	case "NotFound":
		return http.StatusNotFound
	case "Validation":
		return http.StatusBadRequest
	case "InvalidAmount", "ExceedsBalance", "NotAnInvoice", "InsufficientStock", "InsufficientPoints":
		return http.StatusUnprocessableEntity
	case "IllegalTransition", "AlreadyCancelled", "Duplicate":
		return http.StatusConflict
	case "TransientFailure":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := shared.Kind(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	title := http.StatusText(status)
	JSON(w, status, ProblemDetail{
		Type:   kind,
		Title:  title,
		Status: status,
		Detail: shared.UserSafeMessage(err),
	})
}
