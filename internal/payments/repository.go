package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/platform/db"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Repository persists payments in PostgreSQL.
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

const selectPayment = `
	SELECT id, company_id, document_id, amount, method, paid_at, reference, notes,
		COALESCE(idempotency_key, ''), COALESCE(created_by, 0), created_at
	FROM payments`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var method string
	if err := row.Scan(&p.ID, &p.CompanyID, &p.DocumentID, &p.Amount, &method, &p.PaidAt,
		&p.Reference, &p.Notes, &p.IdempotencyKey, &p.CreatedBy, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	p.Method = Method(method)
	return p, nil
}

// ListByDocument returns payments of a document ordered by payment date.
func (r *Repository) ListByDocument(ctx context.Context, companyID, documentID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, selectPayment+`
		WHERE company_id = $1 AND document_id = $2
		ORDER BY paid_at, id`, companyID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepo) LockDocument(ctx context.Context, companyID, documentID int64) (documents.Document, error) {
	return documents.LockDocument(ctx, r.tx, companyID, documentID)
}

func (r *txRepo) FindByIdempotencyKey(ctx context.Context, companyID int64, key string) (Payment, bool, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, selectPayment+`
		WHERE company_id = $1 AND idempotency_key = $2`, companyID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, false, nil
	}
	if err != nil {
		return Payment{}, false, err
	}
	return p, true, nil
}

func (r *txRepo) Insert(ctx context.Context, p Payment) (int64, error) {
	var key any
	if p.IdempotencyKey != "" {
		key = p.IdempotencyKey
	}
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO payments (company_id, document_id, amount, method, paid_at, reference, notes,
			idempotency_key, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9::bigint, 0), $10)
		RETURNING id`,
		p.CompanyID, p.DocumentID, p.Amount, string(p.Method), p.PaidAt, p.Reference, p.Notes,
		key, p.CreatedBy, p.CreatedAt).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: idempotency key %q", shared.ErrIdempotencyConflict, p.IdempotencyKey)
	}
	return id, err
}

func (r *txRepo) UpdateSettlement(ctx context.Context, doc documents.Document) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE documents
		SET paid_amount = $1, outstanding = $2, status = $3, updated_at = NOW()
		WHERE company_id = $4 AND id = $5`,
		doc.PaidAmount, doc.Outstanding, string(doc.Status), doc.CompanyID, doc.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document: %w", shared.ErrNotFound)
	}
	return nil
}
