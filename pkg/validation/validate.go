package validation

import (
	"memodb/pkg/errs"
	"memodb/pkg/models"
)

// Ordering and direction enums accepted by list queries.
const (
	OrderByCreatedAt = "createdAt"
	OrderByUpdatedAt = "updatedAt"

	DirectionAsc  = "ASC"
	DirectionDesc = "DESC"
)

// PerPageAll bypasses pagination (the "perPage=false" request shape).
const PerPageAll = -1

var orderByAllowed = []string{OrderByCreatedAt, OrderByUpdatedAt}
var directionAllowed = []string{DirectionAsc, DirectionDesc}
var roleAllowed = []string{models.RoleUser, models.RoleAssistant, models.RoleTool}

// Rules holds configured validation limits.
type Rules struct {
	// MaxPerPage caps the perPage value of paginated listings.
	MaxPerPage int
}

var rules = Rules{MaxPerPage: 100}

func SetRules(r Rules) {
	if r.MaxPerPage > 0 {
		rules = r
	}
}

// MaxPerPage returns the configured pagination cap.
func MaxPerPage() int { return rules.MaxPerPage }

// ListParams is the normalized shape of a listMessages request.
type ListParams struct {
	ThreadID   string
	ResourceID string
	// Page is the zero-based page index.
	Page int
	// PerPage is the page size; 0 selects the default, PerPageAll bypasses
	// pagination entirely.
	PerPage int
	// Limit optionally caps the total number of returned messages
	// irrespective of pagination. 0 = unset.
	Limit     int
	OrderBy   string
	Direction string
}

// NormalizeList validates p and fills defaults in place. Exactly one of
// ThreadID/ResourceID must be set. Defaults: orderBy=createdAt,
// direction=DESC, perPage=MaxPerPage.
func NormalizeList(p *ListParams) error {
	if (p.ThreadID == "") == (p.ResourceID == "") {
		return errs.Validationf("scope", "exactly one of threadId or resourceId is required")
	}
	if p.Page < 0 {
		return errs.Validationf("page", "must be >= 0, got %d", p.Page)
	}
	switch {
	case p.PerPage == 0:
		p.PerPage = rules.MaxPerPage
	case p.PerPage == PerPageAll:
		// pagination bypassed
	case p.PerPage < 0:
		return errs.Validationf("perPage", "must be a positive integer or false, got %d", p.PerPage)
	case p.PerPage > rules.MaxPerPage:
		p.PerPage = rules.MaxPerPage
	}
	if p.Limit < 0 {
		return errs.Validationf("limit", "must be a positive integer, got %d", p.Limit)
	}
	if p.OrderBy == "" {
		p.OrderBy = OrderByCreatedAt
	}
	if !contains(orderByAllowed, p.OrderBy) {
		return &errs.ValidationError{Field: "orderBy", Allowed: orderByAllowed, Reason: "got " + p.OrderBy}
	}
	if p.Direction == "" {
		p.Direction = DirectionDesc
	}
	if !contains(directionAllowed, p.Direction) {
		return &errs.ValidationError{Field: "sortDirection", Allowed: directionAllowed, Reason: "got " + p.Direction}
	}
	return nil
}

// ValidateMessage checks the fields callers must supply on append. Seq and
// CreatedTS are assigned by the store and ignored here.
func ValidateMessage(m models.Message) error {
	if m.ThreadID == "" {
		return errs.Validationf("thread", "thread id is required")
	}
	if !contains(roleAllowed, m.Role) {
		return &errs.ValidationError{Field: "role", Allowed: roleAllowed, Reason: "got " + m.Role}
	}
	return nil
}

// ValidateWorkingMemoryUpdate enforces a non-empty content body.
func ValidateWorkingMemoryUpdate(content string) error {
	if content == "" {
		return errs.Validationf("content", "content must not be empty")
	}
	return nil
}

// ValidateSearch checks a semanticSearch request.
func ValidateSearch(query string, limit int) error {
	if query == "" {
		return errs.Validationf("searchQuery", "searchQuery is required")
	}
	if limit < 0 {
		return errs.Validationf("limit", "must be a positive integer, got %d", limit)
	}
	return nil
}

func contains(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}
	return false
}
