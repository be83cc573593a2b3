package readapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/munbon/telemetry-core/pkg/types"
)

// Pagination mirrors spec §4.8's {page, limit, total, totalPages} shape.
type Pagination struct {
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
	Truncated  bool   `json:"truncated,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// envelope is the list-response shape: {data, pagination}.
type envelope struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

func writeList(w http.ResponseWriter, data any, p Pagination) {
	writeJSON(w, http.StatusOK, envelope{Data: data, Pagination: p})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the taxonomy in spec §7 to a status code and the
// {error, statusCode} body every non-2xx response carries.
func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, status, map[string]any{"error": msg, "statusCode": status})
}

func statusFor(err error) (int, string) {
	e, ok := err.(*types.Error)
	if !ok {
		return http.StatusInternalServerError, err.Error()
	}
	switch e.Kind {
	case types.KindValidation:
		return http.StatusBadRequest, e.Error()
	case types.KindAuth:
		return http.StatusUnauthorized, e.Error()
	case types.KindForbidden:
		return http.StatusForbidden, e.Error()
	case types.KindNotFound:
		return http.StatusNotFound, e.Error()
	case types.KindTransientIO:
		return http.StatusServiceUnavailable, e.Error()
	default:
		return http.StatusInternalServerError, e.Error()
	}
}

func paginationOf(page, limit, total int) Pagination {
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

func paginate[T any](items []T, page, limit int) ([]T, Pagination) {
	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], paginationOf(page, limit, total)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
