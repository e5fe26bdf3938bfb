package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MovementEvent is emitted once a movement (or its reversal) has committed.
type MovementEvent struct {
	CompanyID     int64
	ItemID        int64
	MovementID    int64
	Type          MovementType
	Delta         decimal.Decimal
	QuantityAfter decimal.Decimal
	Reversal      bool
	At            time.Time
}

// EventHandler receives committed stock movements (metrics, low stock alerts).
// Errors are logged and never undo the movement.
type EventHandler interface {
	HandleStockMovement(ctx context.Context, evt MovementEvent) error
}
