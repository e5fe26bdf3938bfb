package documents

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeLine(t *testing.T) {
	line := ComputeLine(LineInput{
		Description: "Consulting",
		Quantity:    dec("3"),
		UnitPrice:   dec("33.335"),
		DiscountPct: dec("10"),
		TaxPct:      dec("20"),
	}, 1)
	// 100.005 gross, 10.0005 discount, 90.0045 net
	require.Equal(t, "90.00", line.Subtotal.StringFixed(2))
	require.Equal(t, "18.00", line.TaxAmount.StringFixed(2))
	require.Equal(t, "108.00", line.Total.StringFixed(2))
	require.Equal(t, 1, line.LineOrder)
}

func TestComputeTotals(t *testing.T) {
	lines := []Line{
		ComputeLine(LineInput{Quantity: dec("1"), UnitPrice: dec("50"), TaxPct: dec("10")}, 1),
		ComputeLine(LineInput{Quantity: dec("2"), UnitPrice: dec("25"), TaxPct: dec("0")}, 2),
	}
	subtotal, tax, total := ComputeTotals(lines)
	require.True(t, subtotal.Equal(dec("100")))
	require.True(t, tax.Equal(dec("5")))
	require.True(t, total.Equal(dec("105")))
}

func TestFormatNumber(t *testing.T) {
	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "INV-2026-0042", FormatNumber(TypeInvoice, issued, 42))
	require.Equal(t, "QT-2026-0001", FormatNumber(TypeQuote, issued, 1))
	require.Equal(t, "CN-2026-12345", FormatNumber(TypeCreditNote, issued, 12345))
}
