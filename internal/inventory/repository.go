package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/docledger/internal/platform/db"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Repository persists stock items and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const selectItem = `
	SELECT id, company_id, sku, name, current_stock, updated_at
	FROM stock_items
	WHERE company_id = $1 AND id = $2`

const selectMovement = `
	SELECT id, company_id, item_id, movement_type, delta, quantity_before, quantity_after,
		reason, reference, notes, COALESCE(actor_id, 0), created_at
	FROM stock_movements`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CompanyID, &it.SKU, &it.Name, &it.CurrentStock, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("stock item: %w", shared.ErrNotFound)
	}
	return it, err
}

func scanMovement(row pgx.Row) (Movement, error) {
	var mv Movement
	var typ string
	err := row.Scan(&mv.ID, &mv.CompanyID, &mv.ItemID, &typ, &mv.Delta, &mv.QuantityBefore,
		&mv.QuantityAfter, &mv.Reason, &mv.Reference, &mv.Notes, &mv.ActorID, &mv.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	mv.Type = MovementType(typ)
	return mv, nil
}

// GetItem loads an item.
func (r *Repository) GetItem(ctx context.Context, companyID, itemID int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, selectItem, companyID, itemID))
}

// ListItemIDs returns the ids of a company's items.
func (r *Repository) ListItemIDs(ctx context.Context, companyID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM stock_items WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListCompanyIDs returns every company owning at least one stock item.
func (r *Repository) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM stock_items ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListMovements returns the stock card of an item, oldest first.
func (r *Repository) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, selectMovement+`
		WHERE company_id = $1 AND item_id = $2
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY id
		LIMIT $5`,
		companyID, filter.ItemID,
		pgtype.Timestamptz{Time: filter.From, Valid: !filter.From.IsZero()},
		pgtype.Timestamptz{Time: filter.To, Valid: !filter.To.IsZero()},
		filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// LedgerSummary returns the latest movement of an item and the movement count.
func (r *Repository) LedgerSummary(ctx context.Context, companyID, itemID int64) (Movement, int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE company_id = $1 AND item_id = $2`,
		companyID, itemID).Scan(&count); err != nil {
		return Movement{}, 0, err
	}
	if count == 0 {
		return Movement{}, 0, nil
	}
	mv, err := latestMovement(ctx, r.pool, companyID, itemID)
	if err != nil {
		return Movement{}, 0, err
	}
	return mv, count, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func latestMovement(ctx context.Context, q rowQuerier, companyID, itemID int64) (Movement, error) {
	return scanMovement(q.QueryRow(ctx, selectMovement+`
		WHERE company_id = $1 AND item_id = $2
		ORDER BY id DESC
		LIMIT 1`, companyID, itemID))
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_items (company_id, sku, name, current_stock, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, item.CompanyID, item.SKU, item.Name, item.CurrentStock, item.UpdatedAt).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: sku %q already exists", shared.ErrValidation, item.SKU)
	}
	return id, err
}

func (r *txRepo) LockItem(ctx context.Context, companyID, itemID int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, selectItem+" FOR UPDATE", companyID, itemID))
}

func (r *txRepo) UpdateStock(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_items SET current_stock = $1, updated_at = $2 WHERE company_id = $3 AND id = $4`,
		item.CurrentStock, item.UpdatedAt, item.CompanyID, item.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock item: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (company_id, item_id, movement_type, delta, quantity_before,
			quantity_after, reason, reference, notes, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10::bigint, 0), $11)
		RETURNING id`,
		mv.CompanyID, mv.ItemID, string(mv.Type), mv.Delta, mv.QuantityBefore, mv.QuantityAfter,
		mv.Reason, mv.Reference, mv.Notes, mv.ActorID, mv.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) GetMovementForUpdate(ctx context.Context, companyID, movementID int64) (Movement, error) {
	mv, err := scanMovement(r.tx.QueryRow(ctx, selectMovement+`
		WHERE company_id = $1 AND id = $2
		FOR UPDATE`, companyID, movementID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, fmt.Errorf("stock movement: %w", shared.ErrNotFound)
	}
	return mv, err
}

func (r *txRepo) DeleteMovement(ctx context.Context, companyID, movementID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_movements WHERE company_id = $1 AND id = $2`, companyID, movementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock movement: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *txRepo) LatestMovement(ctx context.Context, companyID, itemID int64) (Movement, bool, error) {
	mv, err := latestMovement(ctx, r.tx, companyID, itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, false, nil
	}
	if err != nil {
		return Movement{}, false, err
	}
	return mv, true, nil
}
