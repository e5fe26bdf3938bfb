package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/ledger"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Apply decides the effect of a payment on an invoice without touching storage.
// Checks run in order: document type, cancellation, amount against what remains.
// When nothing remains afterwards the invoice transitions to PAID, passing
// through SENT if it was still a draft.
func Apply(invoice documents.Document, input Input, now time.Time) (Result, error) {
	if invoice.Type != documents.TypeInvoice {
		return Result{}, fmt.Errorf("%w: %s is a %s", shared.ErrNotAnInvoice, invoice.Number, invoice.Type)
	}
	if invoice.Status == documents.StatusCancelled {
		return Result{}, fmt.Errorf("%w: %s", shared.ErrAlreadyCancelled, invoice.Number)
	}
	method := input.Method
	if method == "" {
		method = MethodTransfer
	}
	if !method.Valid() {
		return Result{}, fmt.Errorf("%w: unknown payment method %q", shared.ErrValidation, input.Method)
	}

	remaining := ledger.RemainingBalance(invoice.Total, invoice.PaidAmount)
	amount := ledger.Round2(input.Amount)
	if err := ledger.ValidatePaymentAmount(amount, remaining); err != nil {
		return Result{}, err
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	payment := Payment{
		CompanyID:      invoice.CompanyID,
		DocumentID:     invoice.ID,
		Amount:         amount,
		Method:         method,
		PaidAt:         paidAt,
		Reference:      strings.TrimSpace(input.Reference),
		Notes:          strings.TrimSpace(input.Notes),
		IdempotencyKey: strings.TrimSpace(input.IdempotencyKey),
		CreatedBy:      input.ActorID,
		CreatedAt:      now,
	}

	doc := invoice
	doc.PaidAmount = ledger.Round2(invoice.PaidAmount.Add(amount))
	doc.Outstanding = ledger.RemainingBalance(doc.Total, doc.PaidAmount)

	var path []documents.Status
	if doc.Outstanding.IsZero() {
		if doc.Status == documents.StatusDraft {
			path = append(path, documents.StatusSent)
		}
		path = append(path, documents.StatusPaid)
		for _, next := range path {
			var err error
			if doc, err = documents.Transition(doc, next); err != nil {
				return Result{}, err
			}
		}
	}
	return Result{Payment: payment, Document: doc, Transitions: path}, nil
}

// ProcessorAmount returns what remains on an invoice in minor units, the form
// card processors expect at checkout.
func ProcessorAmount(invoice documents.Document) int64 {
	return ledger.CentsFromUnits(ledger.RemainingBalance(invoice.Total, invoice.PaidAmount))
}
