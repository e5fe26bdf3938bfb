// Package ledger holds the side-effect free arithmetic shared by documents,
// payments and stock: money coercion, minor-unit conversion, balance and
// quantity checks.
package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/shared"
)

// MinorUnitScale is the number of decimal places of the minor currency unit.
const MinorUnitScale = 2

// QuantityScale is the number of decimal places stored for stock quantities.
const QuantityScale = 4

var hundred = decimal.NewFromInt(100)

// ToMoney coerces a numeric-like value to a finite decimal, returning def when
// the value is nil, not numeric, NaN or infinite.
func ToMoney(value any, def decimal.Decimal) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return def
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return def
		}
		return *v
	case decimal.NullDecimal:
		if !v.Valid {
			return def
		}
		return v.Decimal
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0)
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
	case float32:
		return fromFloat(float64(v), def)
	case float64:
		return fromFloat(v, def)
	case *float64:
		if v == nil {
			return def
		}
		return fromFloat(*v, def)
	case json.Number:
		return fromString(string(v), def)
	case string:
		return fromString(v, def)
	case *string:
		if v == nil {
			return def
		}
		return fromString(*v, def)
	case fmt.Stringer:
		return fromString(v.String(), def)
	}
	return def
}

func fromFloat(f float64, def decimal.Decimal) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return decimal.NewFromFloat(f)
}

func fromString(s string, def decimal.Decimal) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return def
	}
	return d
}

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitScale)
}

// CentsFromUnits converts a display amount to integer minor units, rounding half up.
func CentsFromUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// UnitsFromCents converts integer minor units back to a display amount.
func UnitsFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MinorUnitScale)
}

// RemainingBalance returns max(0, round2(total - paid)).
func RemainingBalance(total, paid decimal.Decimal) decimal.Decimal {
	remaining := Round2(total.Sub(paid))
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// ValidatePaymentAmount rejects non-positive amounts and amounts above remaining.
func ValidatePaymentAmount(amount, remaining decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", shared.ErrInvalidAmount, amount.StringFixed(MinorUnitScale))
	}
	if amount.GreaterThan(remaining) {
		return fmt.Errorf("%w: %s > %s", shared.ErrExceedsBalance, amount.StringFixed(MinorUnitScale), remaining.StringFixed(MinorUnitScale))
	}
	return nil
}

// ApplyStockDelta returns before + delta, rejecting results below zero.
func ApplyStockDelta(before, delta decimal.Decimal) (decimal.Decimal, error) {
	after := before.Add(delta)
	if after.IsNegative() {
		return before, fmt.Errorf("%w: %s available, %s requested", shared.ErrInsufficientStock, before.String(), delta.Neg().String())
	}
	return after, nil
}
