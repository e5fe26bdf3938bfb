package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, companyID, itemID int64) (Item, error)
	ListItemIDs(ctx context.Context, companyID int64) ([]int64, error)
	ListCompanyIDs(ctx context.Context) ([]int64, error)
	ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error)
	LedgerSummary(ctx context.Context, companyID, itemID int64) (latest Movement, count int, err error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertItem(ctx context.Context, item Item) (int64, error)
	LockItem(ctx context.Context, companyID, itemID int64) (Item, error)
	UpdateStock(ctx context.Context, item Item) error
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
	GetMovementForUpdate(ctx context.Context, companyID, movementID int64) (Movement, error)
	DeleteMovement(ctx context.Context, companyID, movementID int64) error
	LatestMovement(ctx context.Context, companyID, itemID int64) (Movement, bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed movement requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates stock movements.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	events      EventHandler
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. audit, idem and events may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, events EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, events: events, logger: logger, now: time.Now}
}

// CreateItem registers a stock item with zero stock.
func (s *Service) CreateItem(ctx context.Context, companyID int64, input ItemInput) (Item, error) {
	sku := strings.TrimSpace(input.SKU)
	name := strings.TrimSpace(input.Name)
	if companyID == 0 || sku == "" || name == "" {
		return Item{}, fmt.Errorf("%w: company, sku and name required", shared.ErrValidation)
	}
	item := Item{CompanyID: companyID, SKU: sku, Name: name, CurrentStock: decimal.Zero, UpdatedAt: s.now().UTC()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// GetItem loads an item scoped to the company.
func (s *Service) GetItem(ctx context.Context, companyID, itemID int64) (Item, error) {
	return s.repo.GetItem(ctx, companyID, itemID)
}

// RecordMovement locks the item, appends the movement with its before/after
// snapshot and updates the cached stock in the same transaction.
func (s *Service) RecordMovement(ctx context.Context, companyID, itemID int64, input MovementInput) (Movement, Item, error) {
	if companyID == 0 || itemID == 0 {
		return Movement{}, Item{}, fmt.Errorf("%w: company and item required", shared.ErrValidation)
	}
	var key string
	if s.idempotency != nil && input.IdempotencyKey != "" {
		key = shared.IdempotencyKey(companyID, "inventory", input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, Item{}, err
		}
	}

	var (
		mv   Movement
		item Item
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockItem(ctx, companyID, itemID)
		if err != nil {
			return err
		}
		planned, next, err := PlanMovement(current, input, s.now().UTC())
		if err != nil {
			return err
		}
		id, err := tx.InsertMovement(ctx, planned)
		if err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
		planned.ID = id
		if err := tx.UpdateStock(ctx, next); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		mv, item = planned, next
		return nil
	})
	if err != nil {
		if key != "" {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return Movement{}, Item{}, err
	}
	s.afterCommit(ctx, "inventory:movement", mv, false)
	return mv, item, nil
}

// ReverseMovement undoes a movement: a compensating ADJUSTMENT is appended and
// the original row deleted, atomically. The compensation is checked against
// the item's current stock.
func (s *Service) ReverseMovement(ctx context.Context, companyID, movementID, actorID int64) (Movement, Item, error) {
	if companyID == 0 || movementID == 0 {
		return Movement{}, Item{}, fmt.Errorf("%w: company and movement required", shared.ErrValidation)
	}
	var (
		mv   Movement
		item Item
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetMovementForUpdate(ctx, companyID, movementID)
		if err != nil {
			return err
		}
		current, err := tx.LockItem(ctx, companyID, original.ItemID)
		if err != nil {
			return err
		}
		planned, next, err := PlanReversal(current, original, actorID, s.now().UTC())
		if err != nil {
			return err
		}
		id, err := tx.InsertMovement(ctx, planned)
		if err != nil {
			return fmt.Errorf("insert compensating movement: %w", err)
		}
		planned.ID = id
		if err := tx.DeleteMovement(ctx, companyID, original.ID); err != nil {
			return fmt.Errorf("delete movement: %w", err)
		}
		if err := tx.UpdateStock(ctx, next); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		mv, item = planned, next
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientStock) {
			s.logger.Info("movement reversal rejected", slog.Int64("company_id", companyID), slog.Int64("movement_id", movementID))
		}
		return Movement{}, Item{}, err
	}
	s.afterCommit(ctx, "inventory:reverse", mv, true)
	return mv, item, nil
}

// ListMovements returns the stock card of an item, oldest first.
func (s *Service) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID == 0 {
		return nil, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, companyID, filter)
}

// VerifyStock compares an item's cached stock with its latest movement.
func (s *Service) VerifyStock(ctx context.Context, companyID, itemID int64) (StockCheck, error) {
	item, err := s.repo.GetItem(ctx, companyID, itemID)
	if err != nil {
		return StockCheck{}, err
	}
	latest, count, err := s.repo.LedgerSummary(ctx, companyID, itemID)
	if err != nil {
		return StockCheck{}, err
	}
	check := StockCheck{ItemID: itemID, CurrentStock: item.CurrentStock, LedgerStock: decimal.Zero, Movements: count}
	if count > 0 {
		check.LedgerStock = latest.QuantityAfter
	}
	return check, nil
}

// Companies lists the tenants that own stock items.
func (s *Service) Companies(ctx context.Context) ([]int64, error) {
	return s.repo.ListCompanyIDs(ctx)
}

// VerifyCompany checks every item of a company and returns the inconsistent ones.
func (s *Service) VerifyCompany(ctx context.Context, companyID int64) ([]StockCheck, error) {
	ids, err := s.repo.ListItemIDs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var drift []StockCheck
	for _, id := range ids {
		check, err := s.VerifyStock(ctx, companyID, id)
		if err != nil {
			return nil, fmt.Errorf("verify item %d: %w", id, err)
		}
		if !check.Consistent() {
			s.logger.Warn("stock cache drift",
				slog.Int64("company_id", companyID),
				slog.Int64("item_id", id),
				slog.String("current", check.CurrentStock.String()),
				slog.String("ledger", check.LedgerStock.String()))
			drift = append(drift, check)
		}
	}
	return drift, nil
}

// RepairStock resets the cached stock from the ledger under the item lock.
func (s *Service) RepairStock(ctx context.Context, companyID, itemID int64) (Item, error) {
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockItem(ctx, companyID, itemID)
		if err != nil {
			return err
		}
		latest, found, err := tx.LatestMovement(ctx, companyID, itemID)
		if err != nil {
			return err
		}
		current.CurrentStock = decimal.Zero
		if found {
			current.CurrentStock = latest.QuantityAfter
		}
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateStock(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	return item, err
}

func (s *Service) afterCommit(ctx context.Context, action string, mv Movement, reversal bool) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			CompanyID: mv.CompanyID,
			ActorID:   mv.ActorID,
			Action:    action,
			Entity:    "stock_item",
			EntityID:  strconv.FormatInt(mv.ItemID, 10),
			Meta: map[string]any{
				"movement_id":    mv.ID,
				"type":           mv.Type,
				"delta":          mv.Delta.String(),
				"quantity_after": mv.QuantityAfter.String(),
				"reason":         mv.Reason,
			},
		})
		if err != nil {
			s.logger.Warn("audit stock movement", slog.Any("error", err))
		}
	}
	if s.events != nil {
		evt := MovementEvent{
			CompanyID:     mv.CompanyID,
			ItemID:        mv.ItemID,
			MovementID:    mv.ID,
			Type:          mv.Type,
			Delta:         mv.Delta,
			QuantityAfter: mv.QuantityAfter,
			Reversal:      reversal,
			At:            mv.CreatedAt,
		}
		if err := s.events.HandleStockMovement(ctx, evt); err != nil {
			s.logger.Warn("stock movement event", slog.Any("error", err))
		}
	}
}
