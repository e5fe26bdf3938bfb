package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Handler wires HTTP endpoints for documents.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	notifier  Notifier
	validator *validator.Validate
}

// NewHandler constructs Handler. notifier may be nil.
func NewHandler(logger *slog.Logger, service *Service, notifier Notifier) *Handler {
	return &Handler{logger: logger, service: service, notifier: notifier, validator: validator.New()}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/transitions", h.handleTransition)
}

type lineRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	TaxPct      decimal.Decimal `json:"tax_pct"`
}

type createRequest struct {
	Type      string        `json:"type" validate:"required,oneof=QUOTE INVOICE CREDIT_NOTE"`
	ClientID  int64         `json:"client_id" validate:"gte=0"`
	Currency  string        `json:"currency" validate:"omitempty,len=3"`
	IssueDate string        `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate   string        `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Lines     []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT SENT ACCEPTED REFUSED PAID CANCELLED"`
}

// LineResponse is the JSON view of a line.
type LineResponse struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
	TaxAmount   string `json:"tax_amount"`
	Total       string `json:"total"`
}

// Response is the JSON view of a document.
type Response struct {
	ID          int64          `json:"id"`
	Number      string         `json:"number"`
	Type        Type           `json:"type"`
	Status      Status         `json:"status"`
	Currency    string         `json:"currency"`
	IssueDate   string         `json:"issue_date"`
	DueDate     string         `json:"due_date,omitempty"`
	Subtotal    string         `json:"subtotal"`
	TaxAmount   string         `json:"tax_amount"`
	Total       string         `json:"total"`
	PaidAmount  string         `json:"paid_amount"`
	Outstanding string         `json:"outstanding"`
	Allowed     []Status       `json:"allowed_transitions"`
	Lines       []LineResponse `json:"lines,omitempty"`
}

// NewResponse renders doc for JSON output.
func NewResponse(doc Document) Response {
	resp := Response{
		ID:          doc.ID,
		Number:      doc.Number,
		Type:        doc.Type,
		Status:      doc.Status,
		Currency:    doc.Currency,
		IssueDate:   doc.IssueDate.Format("2006-01-02"),
		Subtotal:    doc.Subtotal.StringFixed(2),
		TaxAmount:   doc.TaxAmount.StringFixed(2),
		Total:       doc.Total.StringFixed(2),
		PaidAmount:  doc.PaidAmount.StringFixed(2),
		Outstanding: doc.Outstanding.StringFixed(2),
		Allowed:     AllowedTransitions(doc.Type, doc.Status),
	}
	if !doc.DueDate.IsZero() {
		resp.DueDate = doc.DueDate.Format("2006-01-02")
	}
	for _, l := range doc.Lines {
		resp.Lines = append(resp.Lines, LineResponse{
			Description: l.Description,
			Quantity:    l.Quantity.String(),
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Subtotal:    l.Subtotal.StringFixed(2),
			TaxAmount:   l.TaxAmount.StringFixed(2),
			Total:       l.Total.StringFixed(2),
		})
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	companyID := shared.CompanyFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := httpx.FieldErrors(h.validator.Struct(req)); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	input := CreateInput{
		Type:     Type(req.Type),
		ClientID: req.ClientID,
		Currency: req.Currency,
		ActorID:  shared.ActorFromContext(r.Context()),
	}
	input.IssueDate, _ = parseDate(req.IssueDate)
	input.DueDate, _ = parseDate(req.DueDate)
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
		})
	}
	doc, err := h.service.Create(r.Context(), companyID, input)
	if err != nil {
		h.fail(w, "create document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewResponse(doc))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Get(r.Context(), shared.CompanyFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewResponse(doc))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := httpx.FieldErrors(h.validator.Struct(req)); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	companyID := shared.CompanyFromContext(r.Context())
	doc, err := h.service.Transition(r.Context(), companyID, id, Status(req.Status), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "transition document", err)
		return
	}
	if h.notifier != nil {
		if err := h.notifier.NotifyDocument(r.Context(), companyID, doc.ID, doc.Status); err != nil {
			h.logger.Warn("enqueue document notification", slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, NewResponse(doc))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.Kind(err) == "" || errors.Is(err, shared.ErrTransient) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
