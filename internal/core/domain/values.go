package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	yearOnlyRe  = regexp.MustCompile(`^\d{4}$`)
	dateRe      = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}`)
	isoStampRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
	longDigitRe = regexp.MustCompile(`^\d{6,}$`)
)

// ToNumber coerces v to a finite float64. Numeric types and trimmed
// numeric strings convert; everything else (nil, bool, empty or
// non-numeric strings, NaN, Inf) does not.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		return parseNumber(string(n))
	case decimal.Decimal:
		f = n.InexactFloat64()
	case string:
		return parseNumber(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsIntLike reports whether v coerces to a whole number.
func IsIntLike(v any) bool {
	f, ok := ToNumber(v)
	return ok && f == math.Trunc(f)
}

// Stringify renders a value the way it is shown as a category key.
// Nil renders as "NULL".
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return "NULL"
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	case decimal.Decimal:
		return s.String()
	case time.Time:
		return s.Format(time.RFC3339)
	case fmt.Stringer:
		return s.String()
	}
	if f, ok := ToNumber(v); ok {
		return formatNumber(f)
	}
	return fmt.Sprint(v)
}

// formatNumber prints the shortest representation that round-trips.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// identityKey distinguishes values for zero-variance checks: the number 1
// and the string "1" are different values.
func identityKey(v any) string {
	switch s := v.(type) {
	case nil:
		return "\x00nil"
	case string:
		return "s:" + s
	case bool:
		return "b:" + strconv.FormatBool(s)
	}
	if f, ok := ToNumber(v); ok {
		return "n:" + formatNumber(f)
	}
	return "o:" + fmt.Sprint(v)
}

// LooksLikeDateValue reports whether v is a date or a date-like string.
// A bare four-digit year is not a date.
func LooksLikeDateValue(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if yearOnlyRe.MatchString(s) {
			return false
		}
		return dateRe.MatchString(s) || isoStampRe.MatchString(s)
	}
	return false
}

// round matches half-up rounding used for bin labels (-2.5 rounds to -2).
func round(f float64) int64 {
	return int64(math.Floor(f + 0.5))
}
