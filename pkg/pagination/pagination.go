// Package pagination provides pagination utilities.
package pagination

// Pagination holds pagination parameters.
type Pagination struct {
	Page    int
	PerPage int
}

// Normalize clamps the pagination parameters into sane bounds.
func (p Pagination) Normalize(maxPerPage int) Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if maxPerPage > 0 && p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Result holds a page of items plus totals.
type Result[T any] struct {
	Data       []T
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

// NewResult builds a Result from a page of items and the total count.
func NewResult[T any](data []T, total int64, page Pagination) Result[T] {
	totalPages := 0
	if page.PerPage > 0 {
		totalPages = int((total + int64(page.PerPage) - 1) / int64(page.PerPage))
	}
	return Result[T]{
		Data:       data,
		Total:      total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: totalPages,
	}
}
