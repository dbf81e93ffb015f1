package form

import (
	"math"
	"strconv"
	"strings"
)

// Coerce converts a raw field value to a number. Empty, malformed and
// non-finite values become 0.
func Coerce(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// CoerceIndex converts a raw meter index. Fractions are truncated; negative
// or out-of-range values become 0.
func CoerceIndex(raw string) int64 {
	v := Coerce(raw)
	if v < 0 || v >= math.MaxInt64 {
		return 0
	}
	return int64(v)
}

// CoerceMonths converts the months-covered field, treating anything below one
// as a single month.
func CoerceMonths(raw string) int {
	v := Coerce(raw)
	if v < 1 || v > math.MaxInt32 {
		return 1
	}
	return int(v)
}

// coerceOptional returns nil for an empty field so the settings default
// applies.
func coerceOptional(raw string) *float64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v := Coerce(raw)
	return &v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
