package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType labels a stock movement. The label is informational: the sign
// of Delta alone decides whether stock goes up or down.
type MovementType string

const (
	// MovementIn represents goods received.
	MovementIn MovementType = "IN"
	// MovementOut represents goods shipped or consumed.
	MovementOut MovementType = "OUT"
	// MovementAdjustment is a manual correction, either sign. Reversals use it.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementInventory records a physical count difference.
	MovementInventory MovementType = "INVENTORY"
	// MovementReturn records goods coming back from a customer.
	MovementReturn MovementType = "RETURN"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementInventory, MovementReturn:
		return true
	}
	return false
}

// Item is a stock-tracked article. CurrentStock mirrors the QuantityAfter of
// the item's latest movement.
type Item struct {
	ID           int64
	CompanyID    int64
	SKU          string
	Name         string
	CurrentStock decimal.Decimal
	UpdatedAt    time.Time
}

// Movement is an append-only stock ledger entry.
type Movement struct {
	ID             int64
	CompanyID      int64
	ItemID         int64
	Type           MovementType
	Delta          decimal.Decimal
	QuantityBefore decimal.Decimal
	QuantityAfter  decimal.Decimal
	Reason         string
	Reference      string
	Notes          string
	ActorID        int64
	CreatedAt      time.Time
}

// MovementInput describes a requested stock change.
type MovementInput struct {
	Type           MovementType
	Delta          decimal.Decimal
	Reason         string
	Reference      string
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// ItemInput describes a new stock item.
type ItemInput struct {
	SKU     string
	Name    string
	ActorID int64
}

// MovementFilter narrows a stock card listing.
type MovementFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

// StockCheck is the outcome of comparing an item's cached stock with its ledger.
type StockCheck struct {
	ItemID       int64
	CurrentStock decimal.Decimal
	LedgerStock  decimal.Decimal
	Movements    int
}

// Consistent reports whether cache and ledger agree.
func (c StockCheck) Consistent() bool {
	return c.CurrentStock.Equal(c.LedgerStock)
}
