// Package utils provides small helpers shared by the HTTP and service
// layers. Nothing here knows about forms.
package utils

import "strconv"

// Page bounds used by list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
//	n := utils.AtoiDefault("42", 0) // 42
//	n = utils.AtoiDefault("x", 5)   // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage bounds a 1-based page number and a page size. A non-positive
// page becomes 1 and the size is kept within [1, MaxPageSize].
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// ParsePage reads page and page-size query values, falling back to page 1
// and DefaultPageSize on empty or malformed input, then clamps them.
func ParsePage(page, size string) (int, int) {
	return ClampPage(AtoiDefault(page, 1), AtoiDefault(size, DefaultPageSize))
}

// Offset is the number of rows skipped before page.
func Offset(page, size int) int {
	if page < 1 || size < 1 {
		return 0
	}
	return (page - 1) * size
}

// TotalPages is ceil(total/size); zero when either is non-positive.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
