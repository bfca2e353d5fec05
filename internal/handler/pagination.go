package handler

import (
	"net/http"
	"strconv"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// page is the window a list endpoint returns.
type page struct {
	limit  int
	offset int
}

// parsePage reads limit and offset from the query. Absent values fall back to
// the defaults and limit is capped at maxPageSize; anything that is not a
// non-negative integer is a validation error.
func parsePage(r *http.Request) (page, error) {
	p := page{limit: defaultPageSize}

	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page{}, apperrors.ValidationError("limit must be a non-negative integer")
		}
		if n > 0 {
			p.limit = min(n, maxPageSize)
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page{}, apperrors.ValidationError("offset must be a non-negative integer")
		}
		p.offset = n
	}
	return p, nil
}
