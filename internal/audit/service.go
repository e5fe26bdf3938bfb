package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/docledger/internal/shared"
)

const maxPageSize = 100

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, params WindowParams) ([]TimelineRow, error)
}

// Service serves the audit timeline of a tenant.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if filters.CompanyID <= 0 {
		return Result{}, fmt.Errorf("%w: company required", shared.ErrValidation)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return Result{}, fmt.Errorf("%w: to precedes from", shared.ErrValidation)
	}
	pageSize := filters.PageSize
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := shared.NewPagination(filters.Page, pageSize, 0)

	rows, err := s.repo.TimelineWindow(ctx, WindowParams{
		CompanyID: filters.CompanyID,
		From:      filters.From,
		To:        filters.To,
		Entity:    strings.TrimSpace(filters.Entity),
		EntityID:  strings.TrimSpace(filters.EntityID),
		Action:    strings.TrimSpace(filters.Action),
		Offset:    page.Offset(),
		Limit:     page.PerPage + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > page.PerPage
	if hasNext {
		rows = rows[:page.PerPage]
	}
	paging := PagingInfo{Page: page.Page, PageSize: page.PerPage, HasNext: hasNext}
	if page.Page > 1 {
		paging.PrevPage = page.Page - 1
	}
	if hasNext {
		paging.NextPage = page.Page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
