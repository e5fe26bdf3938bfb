package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/docledger/internal/platform/db"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Repository persists loyalty clients and movements in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const selectClient = `SELECT id, company_id, name, points_balance, updated_at FROM loyalty_clients`

const selectMovement = `
	SELECT id, company_id, client_id, movement_type, points, expires_at, remaining, description, created_at
	FROM loyalty_movements`

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.PointsBalance, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, fmt.Errorf("loyalty client: %w", shared.ErrNotFound)
	}
	return c, err
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var typ string
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ClientID, &typ, &m.Points, &m.ExpiresAt,
			&m.Remaining, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetClient loads a client.
func (r *Repository) GetClient(ctx context.Context, companyID, clientID int64) (Client, error) {
	return scanClient(r.pool.QueryRow(ctx, selectClient+` WHERE company_id = $1 AND id = $2`, companyID, clientID))
}

// ListMovements returns a client's movements, newest first.
func (r *Repository) ListMovements(ctx context.Context, companyID, clientID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, selectMovement+`
		WHERE company_id = $1 AND client_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, companyID, clientID, limit)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

// CompaniesWithDuePoints lists tenants holding gains due at now.
func (r *Repository) CompaniesWithDuePoints(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT company_id FROM loyalty_movements
		WHERE movement_type = 'GAIN' AND remaining > 0 AND expires_at <= $1
		ORDER BY company_id`, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *txRepo) InsertClient(ctx context.Context, c Client) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO loyalty_clients (company_id, name, points_balance, updated_at)
		VALUES ($1, $2, $3, $4) RETURNING id`, c.CompanyID, c.Name, c.PointsBalance, c.UpdatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) LockClient(ctx context.Context, companyID, clientID int64) (Client, error) {
	return scanClient(r.tx.QueryRow(ctx, selectClient+` WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, clientID))
}

func (r *txRepo) LockClients(ctx context.Context, companyID int64, clientIDs []int64) (map[int64]Client, error) {
	rows, err := r.tx.Query(ctx, selectClient+`
		WHERE company_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE`, companyID, clientIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Client, len(clientIDs))
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (r *txRepo) DueClientIDs(ctx context.Context, companyID int64, now time.Time) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT DISTINCT client_id FROM loyalty_movements
		WHERE company_id = $1 AND movement_type = 'GAIN' AND remaining > 0 AND expires_at <= $2
		ORDER BY client_id`, companyID, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *txRepo) DueGains(ctx context.Context, companyID int64, now time.Time) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, selectMovement+`
		WHERE company_id = $1 AND movement_type = 'GAIN' AND remaining > 0 AND expires_at <= $2
		ORDER BY id
		FOR UPDATE`, companyID, now)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func (r *txRepo) OpenGains(ctx context.Context, companyID, clientID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, selectMovement+`
		WHERE company_id = $1 AND client_id = $2 AND movement_type = 'GAIN' AND remaining > 0
		ORDER BY expires_at NULLS LAST, id
		FOR UPDATE`, companyID, clientID)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO loyalty_movements (company_id, client_id, movement_type, points, expires_at, remaining, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.CompanyID, m.ClientID, string(m.Type), m.Points, m.ExpiresAt, m.Remaining, m.Description, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) SetRemaining(ctx context.Context, companyID int64, remaining map[int64]int64) error {
	if len(remaining) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, left := range remaining {
		batch.Queue(`UPDATE loyalty_movements SET remaining = $1 WHERE company_id = $2 AND id = $3`, left, companyID, id)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepo) UpdateBalance(ctx context.Context, companyID, clientID, balance int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE loyalty_clients SET points_balance = $1, updated_at = NOW() WHERE company_id = $2 AND id = $3`,
		balance, companyID, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("loyalty client: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *txRepo) SumPoints(ctx context.Context, companyID, clientID int64) (int64, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(points), 0)::bigint FROM loyalty_movements WHERE company_id = $1 AND client_id = $2`,
		companyID, clientID).Scan(&sum)
	return sum, err
}
