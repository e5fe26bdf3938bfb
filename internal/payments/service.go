package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/ledger"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListByDocument(ctx context.Context, companyID, documentID int64) ([]Payment, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockDocument(ctx context.Context, companyID, documentID int64) (documents.Document, error)
	FindByIdempotencyKey(ctx context.Context, companyID int64, key string) (Payment, bool, error)
	Insert(ctx context.Context, payment Payment) (int64, error)
	UpdateSettlement(ctx context.Context, doc documents.Document) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service applies payments to invoices.
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

// ApplyPayment locks the invoice, applies the payment and persists the payment
// row together with the new balance and status. Nothing is written on rejection.
func (s *Service) ApplyPayment(ctx context.Context, companyID, documentID int64, input Input) (Result, error) {
	if companyID == 0 || documentID == 0 {
		return Result{}, fmt.Errorf("%w: company and document required", shared.ErrValidation)
	}
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.LockDocument(ctx, companyID, documentID)
		if err != nil {
			return err
		}
		if input.IdempotencyKey != "" {
			prior, found, err := tx.FindByIdempotencyKey(ctx, companyID, input.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if prior.DocumentID != documentID || !prior.Amount.Equal(ledger.Round2(input.Amount)) {
					return fmt.Errorf("%w: key %q was used for another payment", shared.ErrIdempotencyConflict, input.IdempotencyKey)
				}
				result = Result{Payment: prior, Document: invoice, Replayed: true}
				return nil
			}
		}

		res, err := Apply(invoice, input, s.now().UTC())
		if err != nil {
			return err
		}
		if res.Payment.Reference == "" {
			res.Payment.Reference = "PAY-" + uuid.NewString()
		}
		id, err := tx.Insert(ctx, res.Payment)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		res.Payment.ID = id
		if err := tx.UpdateSettlement(ctx, res.Document); err != nil {
			return fmt.Errorf("update invoice balance: %w", err)
		}
		result = res
		return nil
	})
	if err != nil {
		s.logger.Info("payment rejected",
			slog.Int64("company_id", companyID),
			slog.Int64("document_id", documentID),
			slog.String("kind", shared.Kind(err)))
		return Result{}, err
	}
	if result.Replayed {
		return result, nil
	}
	s.logger.Info("payment applied",
		slog.Int64("company_id", companyID),
		slog.Int64("document_id", documentID),
		slog.String("amount", result.Payment.Amount.StringFixed(2)),
		slog.String("outstanding", result.Document.Outstanding.StringFixed(2)),
		slog.Bool("settled", result.Settled()))
	s.record(ctx, result)
	return result, nil
}

// ApplyProcessorPayment applies an amount expressed in minor units, as card
// processors report them.
func (s *Service) ApplyProcessorPayment(ctx context.Context, companyID, documentID, amountCents int64, input Input) (Result, error) {
	input.Amount = ledger.UnitsFromCents(amountCents)
	if input.Method == "" {
		input.Method = MethodCard
	}
	return s.ApplyPayment(ctx, companyID, documentID, input)
}

// ListPayments returns the payments recorded against a document, oldest first.
func (s *Service) ListPayments(ctx context.Context, companyID, documentID int64) ([]Payment, error) {
	return s.repo.ListByDocument(ctx, companyID, documentID)
}

func (s *Service) record(ctx context.Context, result Result) {
	if s.audit == nil {
		return
	}
	p := result.Payment
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: p.CompanyID,
		ActorID:   p.CreatedBy,
		Action:    "payment:apply",
		Entity:    "document",
		EntityID:  strconv.FormatInt(p.DocumentID, 10),
		Meta: map[string]any{
			"payment_id":  p.ID,
			"amount":      p.Amount.StringFixed(2),
			"method":      p.Method,
			"outstanding": result.Document.Outstanding.StringFixed(2),
			"status":      result.Document.Status,
		},
	})
	if err != nil {
		s.logger.Warn("audit payment", slog.Any("error", err))
	}
}
