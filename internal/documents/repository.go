package documents

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

// Querier is the subset of pgx.Tx / pgxpool.Pool used by the row helpers.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists documents in PostgreSQL.
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

const selectDocument = `
	SELECT id, company_id, number, doc_type, status, COALESCE(client_id, 0), currency,
		issue_date, due_date, subtotal, tax_amount, total, paid_amount, outstanding,
		COALESCE(created_by, 0), created_at, updated_at
	FROM documents
	WHERE company_id = $1 AND id = $2`

// Get loads a document with its lines.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, selectDocument, companyID, id))
	if err != nil {
		return Document{}, err
	}
	lines, err := listLines(ctx, r.pool, id)
	if err != nil {
		return Document{}, err
	}
	doc.Lines = lines
	return doc, nil
}

// LockDocument loads a document header with SELECT ... FOR UPDATE. Shared with
// the payments repository so both lock the same row.
func LockDocument(ctx context.Context, q Querier, companyID, id int64) (Document, error) {
	return scanDocument(q.QueryRow(ctx, selectDocument+" FOR UPDATE", companyID, id))
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var docType, status string
	var due pgtype.Date
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.Number, &docType, &status, &doc.ClientID, &doc.Currency,
		&doc.IssueDate, &due, &doc.Subtotal, &doc.TaxAmount, &doc.Total, &doc.PaidAmount, &doc.Outstanding,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("document: %w", shared.ErrNotFound)
	}
	if err != nil {
		return Document{}, err
	}
	doc.Type = Type(docType)
	doc.Status = Status(status)
	if due.Valid {
		doc.DueDate = due.Time
	}
	return doc, nil
}

func listLines(ctx context.Context, q Querier, documentID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT id, description, quantity, unit_price, discount_pct, tax_pct, subtotal, tax_amount, total, line_order
		FROM document_lines
		WHERE document_id = $1
		ORDER BY line_order`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.Description, &l.Quantity, &l.UnitPrice, &l.DiscountPct, &l.TaxPct,
			&l.Subtotal, &l.TaxAmount, &l.Total, &l.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepo) NextNumber(ctx context.Context, companyID int64, t Type, year int) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO document_sequences (company_id, doc_type, year, last_value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, doc_type, year) DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, companyID, string(t), year).Scan(&seq)
	return seq, err
}

func (r *txRepo) Insert(ctx context.Context, doc Document) (int64, error) {
	due := pgtype.Date{Time: doc.DueDate, Valid: !doc.DueDate.IsZero()}
	client := pgtype.Int8{Int64: doc.ClientID, Valid: doc.ClientID != 0}
	createdBy := pgtype.Int8{Int64: doc.CreatedBy, Valid: doc.CreatedBy != 0}
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO documents (
			company_id, number, doc_type, status, client_id, currency, issue_date, due_date,
			subtotal, tax_amount, total, paid_amount, outstanding, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		doc.CompanyID, doc.Number, string(doc.Type), string(doc.Status), client, doc.Currency, doc.IssueDate, due,
		doc.Subtotal, doc.TaxAmount, doc.Total, doc.PaidAmount, doc.Outstanding, createdBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertLines(ctx context.Context, documentID int64, lines []Line) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`
			INSERT INTO document_lines (
				document_id, description, quantity, unit_price, discount_pct, tax_pct,
				subtotal, tax_amount, total, line_order
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			documentID, l.Description, l.Quantity, l.UnitPrice, l.DiscountPct, l.TaxPct,
			l.Subtotal, l.TaxAmount, l.Total, l.LineOrder)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepo) GetForUpdate(ctx context.Context, companyID, id int64) (Document, error) {
	return LockDocument(ctx, r.tx, companyID, id)
}

func (r *txRepo) UpdateStatus(ctx context.Context, companyID, id int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE documents SET status = $1, updated_at = NOW() WHERE company_id = $2 AND id = $3`,
		string(status), companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document: %w", shared.ErrNotFound)
	}
	return nil
}
