package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/documents"
)

// Method enumerates accepted payment methods.
type Method string

const (
	MethodCash        Method = "CASH"
	MethodCheck       Method = "CHECK"
	MethodTransfer    Method = "TRANSFER"
	MethodCard        Method = "CARD"
	MethodDirectDebit Method = "DIRECT_DEBIT"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCheck, MethodTransfer, MethodCard, MethodDirectDebit:
		return true
	}
	return false
}

// Payment is an immutable record of money received against an invoice.
type Payment struct {
	ID             int64
	CompanyID      int64
	DocumentID     int64
	Amount         decimal.Decimal
	Method         Method
	PaidAt         time.Time
	Reference      string
	Notes          string
	IdempotencyKey string
	CreatedBy      int64
	CreatedAt      time.Time
}

// Input carries a payment request.
type Input struct {
	Amount         decimal.Decimal
	Method         Method
	PaidAt         time.Time
	Reference      string
	Notes          string
	IdempotencyKey string
	ActorID        int64
}

// Result is the outcome of applying a payment.
type Result struct {
	Payment  Payment
	Document documents.Document
	// Transitions lists the statuses the invoice passed through, in order.
	Transitions []documents.Status
	// Replayed is set when the idempotency key matched an earlier payment.
	Replayed bool
}

// Settled reports whether the payment moved the invoice to PAID.
func (r Result) Settled() bool {
	for _, s := range r.Transitions {
		if s == documents.StatusPaid {
			return true
		}
	}
	return false
}
