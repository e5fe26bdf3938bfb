package documents

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
	Get(ctx context.Context, companyID, id int64) (Document, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextNumber(ctx context.Context, companyID int64, t Type, year int) (int64, error)
	Insert(ctx context.Context, doc Document) (int64, error)
	InsertLines(ctx context.Context, documentID int64, lines []Line) error
	GetForUpdate(ctx context.Context, companyID, id int64) (Document, error)
	UpdateStatus(ctx context.Context, companyID, id int64, status Status) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates document lifecycle operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Create stores a new DRAFT document with priced lines and a fresh number.
func (s *Service) Create(ctx context.Context, companyID int64, input CreateInput) (Document, error) {
	if companyID == 0 {
		return Document{}, fmt.Errorf("%w: company required", shared.ErrValidation)
	}
	if !input.Type.Valid() {
		return Document{}, fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, input.Type)
	}
	if len(input.Lines) == 0 {
		return Document{}, fmt.Errorf("%w: at least one line is required", shared.ErrValidation)
	}
	issued := input.IssueDate
	if issued.IsZero() {
		issued = s.now().UTC()
	}
	if !input.DueDate.IsZero() && input.DueDate.Before(issued.Truncate(24*time.Hour)) {
		return Document{}, fmt.Errorf("%w: due date before issue date", shared.ErrValidation)
	}
	lines := make([]Line, 0, len(input.Lines))
	for i, in := range input.Lines {
		if !in.Quantity.IsPositive() {
			return Document{}, fmt.Errorf("%w: line %d: quantity must be greater than zero", shared.ErrValidation, i+1)
		}
		if in.UnitPrice.IsNegative() || in.DiscountPct.IsNegative() || in.TaxPct.IsNegative() {
			return Document{}, fmt.Errorf("%w: line %d: negative price, discount or tax", shared.ErrValidation, i+1)
		}
		if in.DiscountPct.GreaterThan(hundred) {
			return Document{}, fmt.Errorf("%w: line %d: discount above 100%%", shared.ErrValidation, i+1)
		}
		lines = append(lines, ComputeLine(in, i+1))
	}
	subtotal, tax, total := ComputeTotals(lines)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "EUR"
	}
	doc := Document{
		CompanyID:  companyID,
		Type:       input.Type,
		Status:     StatusDraft,
		ClientID:   input.ClientID,
		Currency:   currency,
		IssueDate:  issued,
		DueDate:    input.DueDate,
		Lines:      lines,
		Subtotal:   subtotal,
		TaxAmount:  tax,
		Total:      total,
		PaidAmount: decimal.Zero,
		CreatedBy:  input.ActorID,
	}
	if doc.Type == TypeInvoice {
		doc.Outstanding = total
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextNumber(ctx, companyID, doc.Type, issued.Year())
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		doc.Number = FormatNumber(doc.Type, issued, seq)
		id, err := tx.Insert(ctx, doc)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		doc.ID = id
		if err := tx.InsertLines(ctx, id, lines); err != nil {
			return fmt.Errorf("insert document lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.record(ctx, input.ActorID, "document:create", doc)
	return doc, nil
}

// Get loads a document scoped to the company.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Document, error) {
	return s.repo.Get(ctx, companyID, id)
}

// Transition applies a status change under a row lock and persists it.
// Invoices reach PAID only once nothing is outstanding; payments drive that.
func (s *Service) Transition(ctx context.Context, companyID, id int64, target Status, actorID int64) (Document, error) {
	var updated Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if doc.Type == TypeInvoice && target == StatusPaid && doc.Outstanding.IsPositive() {
			return fmt.Errorf("%w: invoice %s still has %s outstanding", shared.ErrIllegalTransition, doc.Number, doc.Outstanding.StringFixed(2))
		}
		next, err := Transition(doc, target)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, companyID, id, next.Status); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrIllegalTransition) {
			s.logger.Info("document transition rejected", slog.Int64("company_id", companyID), slog.Int64("document_id", id), slog.String("target", string(target)))
		}
		return Document{}, err
	}
	updated.UpdatedAt = s.now().UTC()
	s.record(ctx, actorID, "document:"+strings.ToLower(string(target)), updated)
	return updated, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, doc Document) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: doc.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "document",
		EntityID:  strconv.FormatInt(doc.ID, 10),
		Meta: map[string]any{
			"number": doc.Number,
			"type":   doc.Type,
			"status": doc.Status,
			"total":  doc.Total.StringFixed(2),
		},
	})
	if err != nil {
		s.logger.Warn("audit document", slog.String("action", action), slog.Any("error", err))
	}
}
