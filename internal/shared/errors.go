package shared

import "errors"

// Business-rule rejections. Every one of these leaves persisted state untouched.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount is returned for zero or negative monetary amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrExceedsBalance is returned when an amount is larger than what is outstanding.
	ErrExceedsBalance = errors.New("amount exceeds outstanding balance")
	// ErrIllegalTransition is returned when a status change is not in the document's table.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrNotAnInvoice is returned when a payment targets a quote or credit note.
	ErrNotAnInvoice = errors.New("document is not an invoice")
	// ErrAlreadyCancelled is returned when a payment targets a cancelled invoice.
	ErrAlreadyCancelled = errors.New("document already cancelled")
	// ErrInsufficientStock is returned when a movement would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientPoints is returned when a redemption exceeds the client's points balance.
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	// ErrValidation covers malformed input (missing identifiers, bad enum values).
	ErrValidation = errors.New("validation failed")
)

// ErrTransient marks infrastructure failures (serialization conflict, deadlock,
// connection loss). The caller may retry with the same input.
var ErrTransient = errors.New("transient failure")

// Kind returns the taxonomy name of err, or an empty string for unknown errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransient):
		return "TransientFailure"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrExceedsBalance):
		return "ExceedsBalance"
	case errors.Is(err, ErrIllegalTransition):
		return "IllegalTransition"
	case errors.Is(err, ErrNotAnInvoice):
		return "NotAnInvoice"
	case errors.Is(err, ErrAlreadyCancelled):
		return "AlreadyCancelled"
	case errors.Is(err, ErrInsufficientStock):
		return "InsufficientStock"
	case errors.Is(err, ErrInsufficientPoints):
		return "InsufficientPoints"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrValidation):
		return "Validation"
	case errors.Is(err, ErrIdempotencyConflict):
		return "Duplicate"
	}
	return ""
}

// UserSafeMessage returns a message that may be shown to the end user. Unknown
// errors collapse to a generic text so internals never leak.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if Kind(err) == "" {
		return "internal error, please try again later"
	}
	if errors.Is(err, ErrTransient) {
		return "the operation conflicted with another update, please retry"
	}
	return err.Error()
}
