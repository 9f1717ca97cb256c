package models

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PaginationResult holds page metadata for list responses
type PaginationResult struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationResult computes page counts for a result set
func NewPaginationResult(page, pageSize int, totalCount int64) PaginationResult {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	}

	return PaginationResult{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}
}

// Normalize clamps page parameters to sane bounds
func (f *MessageFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
}

// Offset returns the row offset for the current page
func (f MessageFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
