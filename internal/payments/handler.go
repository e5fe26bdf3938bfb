package payments

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Handler exposes payment endpoints nested under /documents.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	notifier  documents.Notifier
	validator *validator.Validate
}

// NewHandler constructs Handler. notifier may be nil.
func NewHandler(logger *slog.Logger, service *Service, notifier documents.Notifier) *Handler {
	return &Handler{logger: logger, service: service, notifier: notifier, validator: validator.New()}
}

// MountRoutes registers payment routes on the documents router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/payments", h.handleApply)
	r.Get("/{id}/payments", h.handleList)
	r.Post("/{id}/processor-payments", h.handleProcessor)
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"omitempty,oneof=CASH CHECK TRANSFER CARD DIRECT_DEBIT"`
	PaidAt    *time.Time      `json:"paid_at"`
	Reference string          `json:"reference" validate:"max=120"`
	Notes     string          `json:"notes" validate:"max=1000"`
}

type processorRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required"`
	Reference   string `json:"reference" validate:"required,max=120"`
}

// PaymentResponse is the JSON view of a payment.
type PaymentResponse struct {
	ID        int64     `json:"id"`
	Amount    string    `json:"amount"`
	Method    Method    `json:"method"`
	PaidAt    time.Time `json:"paid_at"`
	Reference string    `json:"reference"`
	Notes     string    `json:"notes,omitempty"`
}

// ResultResponse is the JSON view of an applied payment.
type ResultResponse struct {
	Payment  PaymentResponse    `json:"payment"`
	Document documents.Response `json:"document"`
	Replayed bool               `json:"replayed,omitempty"`
}

func newPaymentResponse(p Payment) PaymentResponse {
	return PaymentResponse{
		ID:        p.ID,
		Amount:    p.Amount.StringFixed(2),
		Method:    p.Method,
		PaidAt:    p.PaidAt,
		Reference: p.Reference,
		Notes:     p.Notes,
	}
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := httpx.FieldErrors(h.validator.Struct(req)); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	input := Input{
		Amount:         req.Amount,
		Method:         Method(req.Method),
		Reference:      req.Reference,
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		ActorID:        shared.ActorFromContext(r.Context()),
	}
	if req.PaidAt != nil {
		input.PaidAt = *req.PaidAt
	}
	result, err := h.service.ApplyPayment(r.Context(), shared.CompanyFromContext(r.Context()), id, input)
	h.respond(w, r, result, err)
}

func (h *Handler) handleProcessor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req processorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := httpx.FieldErrors(h.validator.Struct(req)); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	input := Input{
		Method:         MethodCard,
		Reference:      req.Reference,
		IdempotencyKey: "processor:" + req.Reference,
		ActorID:        shared.ActorFromContext(r.Context()),
	}
	result, err := h.service.ApplyProcessorPayment(r.Context(), shared.CompanyFromContext(r.Context()), id, req.AmountCents, input)
	h.respond(w, r, result, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, result Result, err error) {
	if err != nil {
		if shared.Kind(err) == "" {
			h.logger.Error("apply payment", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if result.Settled() && h.notifier != nil {
		doc := result.Document
		if err := h.notifier.NotifyDocument(r.Context(), doc.CompanyID, doc.ID, doc.Status); err != nil {
			h.logger.Warn("enqueue document notification", slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, ResultResponse{
		Payment:  newPaymentResponse(result.Payment),
		Document: documents.NewResponse(result.Document),
		Replayed: result.Replayed,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListPayments(r.Context(), shared.CompanyFromContext(r.Context()), id)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]PaymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, newPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}
