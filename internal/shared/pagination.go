package shared

import "math"

// Pagination describes one page of a listing (applicants, samples,
// audit trail). Templates use TotalPages to decide whether to show
// prev/next links at all.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination clamps page and per-page to sane values and derives
// the page count. Listings default to 20 rows.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
