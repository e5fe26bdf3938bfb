package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.handleCreateItem)
	r.Get("/items/{id}", h.handleGetItem)
	r.Get("/items/{id}/verify", h.handleVerify)
	r.Post("/items/{id}/movements", h.handleRecord)
	r.Get("/items/{id}/movements", h.handleStockCard)
	r.Delete("/movements/{id}", h.handleReverse)
}

type itemRequest struct {
	SKU  string `json:"sku" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

type movementRequest struct {
	Type      string          `json:"type" validate:"required,oneof=IN OUT ADJUSTMENT INVENTORY RETURN"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason" validate:"max=200"`
	Reference string          `json:"reference" validate:"max=120"`
	Notes     string          `json:"notes" validate:"max=1000"`
}

// ItemResponse is the JSON view of an item.
type ItemResponse struct {
	ID           int64  `json:"id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	CurrentStock string `json:"current_stock"`
}

// MovementResponse is the JSON view of a movement.
type MovementResponse struct {
	ID             int64        `json:"id"`
	ItemID         int64        `json:"item_id"`
	Type           MovementType `json:"type"`
	Delta          string       `json:"delta"`
	QuantityBefore string       `json:"quantity_before"`
	QuantityAfter  string       `json:"quantity_after"`
	Reason         string       `json:"reason,omitempty"`
	Reference      string       `json:"reference,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

type movementResult struct {
	Movement MovementResponse `json:"movement"`
	Item     ItemResponse     `json:"item"`
}

func newItemResponse(it Item) ItemResponse {
	return ItemResponse{ID: it.ID, SKU: it.SKU, Name: it.Name, CurrentStock: it.CurrentStock.String()}
}

func newMovementResponse(mv Movement) MovementResponse {
	return MovementResponse{
		ID:             mv.ID,
		ItemID:         mv.ItemID,
		Type:           mv.Type,
		Delta:          mv.Delta.String(),
		QuantityBefore: mv.QuantityBefore.String(),
		QuantityAfter:  mv.QuantityAfter.String(),
		Reason:         mv.Reason,
		Reference:      mv.Reference,
		CreatedAt:      mv.CreatedAt,
	}
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := httpx.FieldErrors(h.validator.Struct(req)); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	item, err := h.service.CreateItem(r.Context(), shared.CompanyFromContext(r.Context()), ItemInput{
		SKU:     req.SKU,
		Name:    req.Name,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "create stock item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newItemResponse(item))
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), shared.CompanyFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get stock item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newItemResponse(item))
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields := httpx.FieldErrors(h.validator.Struct(req)); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	mv, item, err := h.service.RecordMovement(r.Context(), shared.CompanyFromContext(r.Context()), id, MovementInput{
		Type:           MovementType(req.Type),
		Delta:          req.Delta,
		Reason:         req.Reason,
		Reference:      req.Reference,
		Notes:          req.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.fail(w, "record stock movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResult{Movement: newMovementResponse(mv), Item: newItemResponse(item)})
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, item, err := h.service.ReverseMovement(r.Context(), shared.CompanyFromContext(r.Context()), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "reverse stock movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movementResult{Movement: newMovementResponse(mv), Item: newItemResponse(item)})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := MovementFilter{ItemID: id}
	q := r.URL.Query()
	errs := make(map[string]string)
	if v := q.Get("from"); v != "" {
		if filter.From, err = time.Parse("2006-01-02", v); err != nil {
			errs["from"] = "invalid date"
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = time.Parse("2006-01-02", v); err != nil {
			errs["to"] = "invalid date"
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			errs["limit"] = "invalid number"
		}
	}
	if len(errs) > 0 {
		httpx.ValidationProblem(w, errs)
		return
	}
	list, err := h.service.ListMovements(r.Context(), shared.CompanyFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, "list stock movements", err)
		return
	}
	out := make([]MovementResponse, 0, len(list))
	for _, mv := range list {
		out = append(out, newMovementResponse(mv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	check, err := h.service.VerifyStock(r.Context(), shared.CompanyFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "verify stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"item_id":       check.ItemID,
		"current_stock": check.CurrentStock.String(),
		"ledger_stock":  check.LedgerStock.String(),
		"movements":     check.Movements,
		"consistent":    check.Consistent(),
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.Kind(err) == "" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
