package readapi

import (
	"net/http"
	"strings"
	"time"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
)

// pageLimit parses the page/limit query params per spec §4.8: page is
// 1-based, limit defaults to 20 and is capped at 1000.
func pageLimit(r *http.Request) (page, limit int) {
	page = atoiOr(r.URL.Query().Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit = atoiOr(r.URL.Query().Get("limit"), defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// timeRange parses start/end as RFC3339 UTC, defaulting to the last 24h
// when absent, per spec §4.8.
func timeRange(r *http.Request) (start, end time.Time, err error) {
	now := time.Now().UTC()
	end = now
	start = now.Add(-24 * time.Hour)

	if s := r.URL.Query().Get("start"); s != "" {
		start, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if e := r.URL.Query().Get("end"); e != "" {
		end, err = time.Parse(time.RFC3339, e)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

// intervalBucket maps spec §4.8's interval enum to a bucket duration.
func intervalBucket(raw string) (time.Duration, bool) {
	switch raw {
	case "1h", "":
		return time.Hour, true
	case "1d":
		return 24 * time.Hour, true
	case "1w":
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// aggregations splits spec §4.8's comma-separated multi-agg parameter,
// defaulting to avg alone when absent.
func aggregations(raw string) []string {
	if raw == "" {
		return []string{"avg"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validAggregations = map[string]bool{"avg": true, "min": true, "max": true, "sum": true, "count": true}
