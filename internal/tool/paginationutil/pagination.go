// Package paginationutil cuts result lists down to the sandbox limits.
package paginationutil

// Page describes how a list was cut.
type Page struct {
	TotalCount int
	Truncated  bool
}

// ApplyPagination returns the window of items starting at offset holding at
// most limit entries, clamped to the list. A non-positive limit keeps
// everything after offset. Truncated reports entries beyond the window.
func ApplyPagination[T any](items []T, offset, limit int) ([]T, Page) {
	total := len(items)
	start := min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}
	return items[start:end], Page{TotalCount: total, Truncated: end < total}
}
