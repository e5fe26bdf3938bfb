package documents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docledger/internal/shared"
)

var allStatuses = []Status{StatusDraft, StatusSent, StatusAccepted, StatusRefused, StatusPaid, StatusCancelled}

func TestTransitionTables(t *testing.T) {
	legal := map[Type]map[[2]Status]bool{
		TypeQuote: {
			{StatusDraft, StatusSent}:         true,
			{StatusDraft, StatusCancelled}:    true,
			{StatusSent, StatusAccepted}:      true,
			{StatusSent, StatusRefused}:       true,
			{StatusSent, StatusCancelled}:     true,
			{StatusAccepted, StatusCancelled}: true,
		},
		TypeInvoice: {
			{StatusDraft, StatusSent}:      true,
			{StatusDraft, StatusCancelled}: true,
			{StatusSent, StatusPaid}:       true,
			{StatusSent, StatusCancelled}:  true,
		},
		TypeCreditNote: {
			{StatusDraft, StatusSent}:      true,
			{StatusDraft, StatusCancelled}: true,
			{StatusSent, StatusPaid}:       true,
			{StatusSent, StatusCancelled}:  true,
		},
	}
	for typ, table := range legal {
		for _, from := range allStatuses {
			for _, to := range allStatuses {
				doc := Document{ID: 1, Type: typ, Status: from}
				next, err := Transition(doc, to)
				if table[[2]Status{from, to}] {
					require.NoError(t, err, "%s %s -> %s", typ, from, to)
					require.Equal(t, to, next.Status)
					continue
				}
				require.ErrorIs(t, err, shared.ErrIllegalTransition, "%s %s -> %s", typ, from, to)
				require.Equal(t, from, next.Status)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.True(t, Document{Type: TypeQuote, Status: StatusRefused}.IsTerminal())
	require.True(t, Document{Type: TypeQuote, Status: StatusCancelled}.IsTerminal())
	require.False(t, Document{Type: TypeQuote, Status: StatusAccepted}.IsTerminal())
	require.True(t, Document{Type: TypeInvoice, Status: StatusPaid}.IsTerminal())
	require.True(t, Document{Type: TypeCreditNote, Status: StatusPaid}.IsTerminal())
}

func TestTransitionUnknownType(t *testing.T) {
	_, err := Transition(Document{Type: "RECEIPT", Status: StatusDraft}, StatusSent)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestTransitionOutsideStatusSet(t *testing.T) {
	_, err := Transition(Document{Type: TypeInvoice, Status: StatusDraft}, StatusAccepted)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	require.NotContains(t, Statuses(TypeInvoice), StatusAccepted)
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := AllowedTransitions(TypeInvoice, StatusDraft)
	next[0] = StatusPaid
	require.Equal(t, []Status{StatusSent, StatusCancelled}, AllowedTransitions(TypeInvoice, StatusDraft))
}
