package common

import (
	"net/http"
	"strconv"
)

// Cursor pagination limits for list endpoints
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// CursorParams represents cursor pagination parameters. The cursor is the
// last id of the previous page.
type CursorParams struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

// ExtractCursorParams extracts cursor pagination parameters from request.
// Out-of-range limits are clamped rather than rejected.
func ExtractCursorParams(r *http.Request) CursorParams {
	params := CursorParams{Limit: DefaultPageSize}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			if l > MaxPageSize {
				l = MaxPageSize
			}
			params.Limit = l
		}
	}

	params.Cursor = r.URL.Query().Get("cursor")
	return params
}

// CursorInfo is the pagination block of a list response
type CursorInfo struct {
	Limit      int    `json:"limit"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}
