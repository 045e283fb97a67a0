// Package utils holds the query-string helpers shared by the handlers.
package utils

import "strconv"

// AtoiDefault parses page and page_size; blank or malformed input yields def.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseBoolDefault parses a query flag such as include_deleted or hard.
// An empty string yields def; anything strconv.ParseBool rejects is an
// error so that typos are not silently read as false.
func ParseBoolDefault(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}

// ParseOptBool is ParseBoolDefault for tri-state filters: empty means "not
// filtered" and yields nil.
func ParseOptBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Window converts a 1-based page and a page size into an offset and limit.
func Window(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize, pageSize
}

// TotalPages is the number of pages needed for total items.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
