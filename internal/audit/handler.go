package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the timeline route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleTimeline)
}

type entryResponse struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type timelineResponse struct {
	Entries  []entryResponse `json:"entries"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	NextPage int             `json:"next_page,omitempty"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters.CompanyID = shared.CompanyFromContext(r.Context())
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		if shared.Kind(err) == "" {
			h.logger.Error("audit timeline", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	out := timelineResponse{
		Entries:  make([]entryResponse, 0, len(result.Rows)),
		Page:     result.Paging.Page,
		PageSize: result.Paging.PageSize,
		NextPage: result.Paging.NextPage,
	}
	for _, row := range result.Rows {
		out.Entries = append(out.Entries, entryResponse(row))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	filters := TimelineFilters{Entity: q.Get("entity"), EntityID: q.Get("entity_id"), Action: q.Get("action")}
	var err error
	if filters.From, err = parseTime(q.Get("from")); err != nil {
		return filters, err
	}
	if filters.To, err = parseTime(q.Get("to")); err != nil {
		return filters, err
	}
	if filters.Page, err = parseInt(q.Get("page")); err != nil {
		return filters, err
	}
	if filters.PageSize, err = parseInt(q.Get("page_size")); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q", shared.ErrValidation, raw)
	}
	return t, nil
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid number %q", shared.ErrValidation, raw)
	}
	return v, nil
}
