package documents

import (
	"fmt"

	"github.com/odyssey-erp/docledger/internal/shared"
)

// transitionTable lists, per status, the statuses reachable in one step.
// A status absent from the table (or mapped to nothing) is terminal.
type transitionTable map[Status][]Status

var transitions = map[Type]transitionTable{
	TypeQuote: {
		StatusDraft:    {StatusSent, StatusCancelled},
		StatusSent:     {StatusAccepted, StatusRefused, StatusCancelled},
		StatusAccepted: {StatusCancelled},
	},
	TypeInvoice: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusPaid, StatusCancelled},
	},
	TypeCreditNote: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusPaid, StatusCancelled},
	},
}

var statusSets = map[Type][]Status{
	TypeQuote:      {StatusDraft, StatusSent, StatusAccepted, StatusRefused, StatusCancelled},
	TypeInvoice:    {StatusDraft, StatusSent, StatusPaid, StatusCancelled},
	TypeCreditNote: {StatusDraft, StatusSent, StatusPaid, StatusCancelled},
}

// Statuses returns the status set of a document type.
func Statuses(t Type) []Status {
	out := make([]Status, len(statusSets[t]))
	copy(out, statusSets[t])
	return out
}

// AllowedTransitions returns the statuses reachable from current for type t.
func AllowedTransitions(t Type, current Status) []Status {
	next := transitions[t][current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current -> target is in t's table.
func CanTransition(t Type, current, target Status) bool {
	for _, s := range transitions[t][current] {
		if s == target {
			return true
		}
	}
	return false
}

// Transition moves doc to target. It only decides; persistence and
// notifications belong to the caller.
func Transition(doc Document, target Status) (Document, error) {
	if !doc.Type.Valid() {
		return doc, fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, doc.Type)
	}
	if !CanTransition(doc.Type, doc.Status, target) {
		return doc, fmt.Errorf("%w: %s %s -> %s", shared.ErrIllegalTransition, doc.Type, doc.Status, target)
	}
	doc.Status = target
	return doc, nil
}
