package reader

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"tradersentiment/models"
)

// parseTimestamps converts a timestamp column. The column is read as
// millisecond epoch values; if any non-empty cell is not numeric the whole
// column is re-read as free-form date text in UTC. Cells that fail both ways
// are nil.
func parseTimestamps(values []string) ([]*time.Time, int) {
	out := make([]*time.Time, len(values))
	epoch := true
	for i, v := range values {
		v = strings.TrimSpace(v)
		if isNullCell(v) {
			continue
		}
		ms, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
			epoch = false
			break
		}
		t := time.UnixMilli(int64(ms)).UTC()
		out[i] = &t
	}
	if epoch {
		return out, 0
	}

	failed := 0
	for i, v := range values {
		out[i] = nil
		v = strings.TrimSpace(v)
		if isNullCell(v) {
			continue
		}
		t, err := dateparse.ParseIn(v, time.UTC)
		if err != nil {
			failed++
			continue
		}
		t = t.UTC()
		out[i] = &t
	}
	return out, failed
}

// parseDay parses a sentiment date cell and truncates it to the UTC day.
func parseDay(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if isNullCell(v) {
		return time.Time{}, false
	}
	if d, err := models.ParseDate(v); err == nil {
		if t, err := d.Time(); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseIn(v, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

func isNullCell(v string) bool {
	switch strings.ToLower(v) {
	case "", "nan", "null", "none", "nat":
		return true
	}
	return false
}

// parseNumber returns nil for null or non-numeric cells. The second result
// is false when a non-empty cell could not be parsed.
func parseNumber(v string) (*float64, bool) {
	v = strings.TrimSpace(v)
	if isNullCell(v) {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return &f, true
}
