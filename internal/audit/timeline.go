package audit

import "time"

// TimelineFilters narrows the audit timeline of one company.
type TimelineFilters struct {
	CompanyID int64
	From      time.Time
	To        time.Time
	Entity    string
	EntityID  string
	Action    string
	Page      int
	PageSize  int
}

// TimelineRow is one audit entry.
type TimelineRow struct {
	ID       int64
	At       time.Time
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// PagingInfo describes the position of a timeline page.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// WindowParams is the query issued for one page; Limit is one more than the
// page size so the caller can tell whether a next page exists.
type WindowParams struct {
	CompanyID int64
	From      time.Time
	To        time.Time
	Entity    string
	EntityID  string
	Action    string
	Offset    int
	Limit     int
}
