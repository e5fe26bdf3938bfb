package loyalty

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Handler wires HTTP endpoints for the loyalty ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sweeper   *Sweeper
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, sweeper *Sweeper) *Handler {
	return &Handler{logger: logger, service: service, sweeper: sweeper, validator: validator.New(), now: time.Now}
}

// MountRoutes registers loyalty routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/clients", h.handleCreateClient)
	r.Get("/clients/{id}", h.handleGetClient)
	r.Post("/clients/{id}/gains", h.handleGrant)
	r.Post("/clients/{id}/redemptions", h.handleRedeem)
	r.Post("/clients/{id}/adjustments", h.handleAdjust)
	r.Post("/clients/{id}/recount", h.handleRecount)
	r.Post("/expirations", h.handleExpire)
}

type clientRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type gainRequest struct {
	Points      int64      `json:"points" validate:"required,gt=0"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Description string     `json:"description" validate:"max=500"`
}

type pointsRequest struct {
	Points      int64  `json:"points" validate:"required,ne=0"`
	Description string `json:"description" validate:"max=500"`
}

// ClientResponse is the JSON view of a client.
type ClientResponse struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name"`
	PointsBalance int64              `json:"points_balance"`
	Movements     []MovementResponse `json:"movements,omitempty"`
}

// MovementResponse is the JSON view of a movement.
type MovementResponse struct {
	ID          int64        `json:"id"`
	Type        MovementType `json:"type"`
	Points      int64        `json:"points"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Remaining   int64        `json:"remaining,omitempty"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type movementResult struct {
	Movement MovementResponse `json:"movement"`
	Client   ClientResponse   `json:"client"`
}

func newClientResponse(c Client) ClientResponse {
	return ClientResponse{ID: c.ID, Name: c.Name, PointsBalance: c.PointsBalance}
}

func newMovementResponse(m Movement) MovementResponse {
	return MovementResponse{
		ID:          m.ID,
		Type:        m.Type,
		Points:      m.Points,
		ExpiresAt:   m.ExpiresAt,
		Remaining:   m.Remaining,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !h.decode(w, r, &req) {
		return
	}
	client, err := h.service.CreateClient(r.Context(), shared.CompanyFromContext(r.Context()), req.Name)
	if err != nil {
		h.fail(w, "create loyalty client", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newClientResponse(client))
}

func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	companyID := shared.CompanyFromContext(r.Context())
	client, err := h.service.GetClient(r.Context(), companyID, id)
	if err != nil {
		h.fail(w, "get loyalty client", err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), companyID, id, 50)
	if err != nil {
		h.fail(w, "list loyalty movements", err)
		return
	}
	resp := newClientResponse(client)
	for _, m := range movements {
		resp.Movements = append(resp.Movements, newMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req gainRequest
	if !h.decode(w, r, &req) {
		return
	}
	mv, client, err := h.service.GrantPoints(r.Context(), shared.CompanyFromContext(r.Context()), id, req.Points, req.ExpiresAt, req.Description)
	h.respondMovement(w, "grant loyalty points", mv, client, err)
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req pointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	mv, client, err := h.service.RedeemPoints(r.Context(), shared.CompanyFromContext(r.Context()), id, req.Points, req.Description)
	h.respondMovement(w, "redeem loyalty points", mv, client, err)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req pointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	mv, client, err := h.service.AdjustPoints(r.Context(), shared.CompanyFromContext(r.Context()), id, req.Points, req.Description)
	h.respondMovement(w, "adjust loyalty points", mv, client, err)
}

func (h *Handler) handleRecount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recount, err := h.service.RecomputeBalance(r.Context(), shared.CompanyFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "recompute loyalty balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"client_id": recount.ClientID,
		"cached":    recount.Cached,
		"ledger":    recount.Ledger,
		"repaired":  recount.Cached != recount.Ledger,
	})
}

func (h *Handler) handleExpire(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Sweep(r.Context(), shared.CompanyFromContext(r.Context()), h.now().UTC())
	if err != nil {
		h.fail(w, "expire loyalty points", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"clients_expired": result.ClientsExpired,
		"points_expired":  result.PointsExpired,
		"gains_closed":    result.GainsClosed,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if fields := httpx.FieldErrors(h.validator.Struct(dst)); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) respondMovement(w http.ResponseWriter, op string, mv Movement, client Client, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResult{Movement: newMovementResponse(mv), Client: newClientResponse(client)})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.Kind(err) == "" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
