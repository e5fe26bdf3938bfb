package documents

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Type discriminates the document variants.
type Type string

const (
	// TypeQuote is a commercial proposal.
	TypeQuote Type = "QUOTE"
	// TypeInvoice is a receivable; only invoices accept payments.
	TypeInvoice Type = "INVOICE"
	// TypeCreditNote reverses (part of) an invoice.
	TypeCreditNote Type = "CREDIT_NOTE"
)

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	switch t {
	case TypeQuote, TypeInvoice, TypeCreditNote:
		return true
	}
	return false
}

// Status enumerates document statuses across all types.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusAccepted  Status = "ACCEPTED"
	StatusRefused   Status = "REFUSED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Line is a priced document line with computed amounts.
type Line struct {
	ID          int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	Total       decimal.Decimal
	LineOrder   int
}

// Document models a quote, invoice or credit note.
type Document struct {
	ID          int64
	CompanyID   int64
	Number      string
	Type        Type
	Status      Status
	ClientID    int64
	Currency    string
	IssueDate   time.Time
	DueDate     time.Time
	Lines       []Line
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	Total       decimal.Decimal
	PaidAmount  decimal.Decimal
	Outstanding decimal.Decimal
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsTerminal reports whether no further transition is possible.
func (d Document) IsTerminal() bool {
	return len(AllowedTransitions(d.Type, d.Status)) == 0
}

// LineInput describes a line in a create request.
type LineInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
}

// CreateInput describes a new draft document.
type CreateInput struct {
	Type      Type
	ClientID  int64
	Currency  string
	IssueDate time.Time
	DueDate   time.Time
	Lines     []LineInput
	ActorID   int64
}

// Notifier is the collaborator that dispatches e-mails after a status change.
type Notifier interface {
	NotifyDocument(ctx context.Context, companyID, documentID int64, status Status) error
}
