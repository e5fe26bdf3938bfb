package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/docledger/internal/ledger"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// ErrCannotReverse is returned when undoing a movement would drive current
// stock below zero.
var ErrCannotReverse = fmt.Errorf("cannot reverse: %w", shared.ErrInsufficientStock)

// PlanMovement computes the movement that applies input to item and the item's
// new stock. It fails with ErrInsufficientStock when stock would go negative.
func PlanMovement(item Item, input MovementInput, now time.Time) (Movement, Item, error) {
	if !input.Type.Valid() {
		return Movement{}, item, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, input.Type)
	}
	if input.Delta.IsZero() {
		return Movement{}, item, fmt.Errorf("%w: delta must be non zero", shared.ErrValidation)
	}
	if !input.Delta.Equal(input.Delta.Truncate(ledger.QuantityScale)) {
		return Movement{}, item, fmt.Errorf("%w: delta %s has more than %d decimal places", shared.ErrValidation, input.Delta, ledger.QuantityScale)
	}
	after, err := ledger.ApplyStockDelta(item.CurrentStock, input.Delta)
	if err != nil {
		return Movement{}, item, err
	}
	mv := Movement{
		CompanyID:      item.CompanyID,
		ItemID:         item.ID,
		Type:           input.Type,
		Delta:          input.Delta,
		QuantityBefore: item.CurrentStock,
		QuantityAfter:  after,
		Reason:         strings.TrimSpace(input.Reason),
		Reference:      strings.TrimSpace(input.Reference),
		Notes:          strings.TrimSpace(input.Notes),
		ActorID:        input.ActorID,
		CreatedAt:      now,
	}
	item.CurrentStock = after
	item.UpdatedAt = now
	return mv, item, nil
}

// PlanReversal computes the compensating ADJUSTMENT for original against the
// item's current stock, not the stock at the time original was recorded.
func PlanReversal(item Item, original Movement, actorID int64, now time.Time) (Movement, Item, error) {
	if original.ItemID != item.ID {
		return Movement{}, item, fmt.Errorf("%w: movement %d does not belong to item %d", shared.ErrValidation, original.ID, item.ID)
	}
	mv, next, err := PlanMovement(item, MovementInput{
		Type:      MovementAdjustment,
		Delta:     original.Delta.Neg(),
		Reason:    fmt.Sprintf("reversal of movement %d", original.ID),
		Reference: original.Reference,
		ActorID:   actorID,
	}, now)
	if errors.Is(err, shared.ErrInsufficientStock) {
		return Movement{}, item, ErrCannotReverse
	}
	if err != nil {
		return Movement{}, item, err
	}
	return mv, next, nil
}
