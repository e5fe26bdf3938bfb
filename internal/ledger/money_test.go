package ledger

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docledger/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestToMoney(t *testing.T) {
	def := d("-1")
	var nilFloat *float64
	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "-1"},
		{"nil pointer", nilFloat, "-1"},
		{"int", 12, "12"},
		{"float", 12.5, "12.5"},
		{"nan", math.NaN(), "-1"},
		{"inf", math.Inf(1), "-1"},
		{"string", " 19.99 ", "19.99"},
		{"empty string", "", "-1"},
		{"garbage", "twelve", "-1"},
		{"json number", json.Number("7.25"), "7.25"},
		{"decimal", d("3.10"), "3.1"},
		{"bool", true, "-1"},
		{"uint64", uint64(42), "42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, d(tc.want).Equal(ToMoney(tc.value, def)), "got %s", ToMoney(tc.value, def))
		})
	}
}

func TestMinorUnitConversion(t *testing.T) {
	require.Equal(t, int64(1999), CentsFromUnits(d("19.99")))
	require.Equal(t, int64(1000), CentsFromUnits(d("9.995")))
	require.Equal(t, int64(1), CentsFromUnits(d("0.005")))
	require.Equal(t, int64(0), CentsFromUnits(d("0.004")))
	require.Equal(t, int64(-1), CentsFromUnits(d("-0.005")))
	require.True(t, d("19.99").Equal(UnitsFromCents(1999)))
	require.True(t, d("0.01").Equal(UnitsFromCents(1)))
	for _, cents := range []int64{0, 1, 99, 100, 123456789} {
		require.Equal(t, cents, CentsFromUnits(UnitsFromCents(cents)))
	}
}

func TestRemainingBalanceNeverNegative(t *testing.T) {
	require.True(t, d("40").Equal(RemainingBalance(d("100"), d("60"))))
	require.True(t, decimal.Zero.Equal(RemainingBalance(d("100"), d("100"))))
	require.True(t, decimal.Zero.Equal(RemainingBalance(d("100"), d("150"))))
	require.True(t, d("0.01").Equal(RemainingBalance(d("100.005"), d("99.999"))))
	for total := int64(0); total < 500; total += 37 {
		for paid := int64(0); paid < 600; paid += 41 {
			r := RemainingBalance(UnitsFromCents(total), UnitsFromCents(paid))
			require.False(t, r.IsNegative())
		}
	}
}

func TestValidatePaymentAmount(t *testing.T) {
	require.ErrorIs(t, ValidatePaymentAmount(decimal.Zero, d("10")), shared.ErrInvalidAmount)
	require.ErrorIs(t, ValidatePaymentAmount(d("-5"), d("10")), shared.ErrInvalidAmount)
	require.ErrorIs(t, ValidatePaymentAmount(d("10.01"), d("10")), shared.ErrExceedsBalance)
	require.NoError(t, ValidatePaymentAmount(d("10"), d("10")))
	require.NoError(t, ValidatePaymentAmount(d("0.01"), d("10")))
}

func TestApplyStockDelta(t *testing.T) {
	after, err := ApplyStockDelta(d("5"), d("-5"))
	require.NoError(t, err)
	require.True(t, after.IsZero())

	after, err = ApplyStockDelta(d("0"), d("-1"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, after.IsZero())

	after, err = ApplyStockDelta(d("2.5"), d("1.25"))
	require.NoError(t, err)
	require.True(t, d("3.75").Equal(after))
}
