package documents

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// ComputeLine prices a line: discount on the gross amount, tax on the net.
// Each amount is rounded half up to cents.
func ComputeLine(in LineInput, order int) Line {
	gross := in.Quantity.Mul(in.UnitPrice)
	discount := gross.Mul(in.DiscountPct).Div(hundred)
	subtotal := ledger.Round2(gross.Sub(discount))
	tax := ledger.Round2(subtotal.Mul(in.TaxPct).Div(hundred))
	return Line{
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		DiscountPct: in.DiscountPct,
		TaxPct:      in.TaxPct,
		Subtotal:    subtotal,
		TaxAmount:   tax,
		Total:       subtotal.Add(tax),
		LineOrder:   order,
	}
}

// ComputeTotals sums already priced lines.
func ComputeTotals(lines []Line) (subtotal, tax, total decimal.Decimal) {
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal)
		tax = tax.Add(l.TaxAmount)
	}
	return subtotal, tax, subtotal.Add(tax)
}

// NumberPrefix returns the document number prefix for t.
func NumberPrefix(t Type) string {
	switch t {
	case TypeQuote:
		return "QT"
	case TypeInvoice:
		return "INV"
	case TypeCreditNote:
		return "CN"
	}
	return "DOC"
}

// FormatNumber renders a sequential number such as INV-2026-0042.
func FormatNumber(t Type, issued time.Time, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", NumberPrefix(t), issued.Year(), seq)
}
