package domain

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Percentile returns the p-th percentile (p in [0,1]) of nums using linear
// interpolation between the closest ranks: index (n-1)*p on the sorted
// sample. Returns NaN for an empty sample. nums is not modified.
func Percentile(nums []float64, p float64) float64 {
	if len(nums) == 0 {
		return math.NaN()
	}
	s := make([]float64, len(nums))
	copy(s, nums)
	sort.Float64s(s)

	idx := float64(len(s)-1) * p
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return s[lo]
	}
	w := idx - float64(lo)
	return s[lo]*(1-w) + s[hi]*w
}

// LooksLikeLongText reports whether the non-null values read as free text:
// the longest is at least LongTextMaxLen characters or the average is at
// least LongTextAvgLen.
func LooksLikeLongText(values []any) bool {
	var n, total, longest int
	for _, v := range values {
		if v == nil {
			continue
		}
		l := utf8.RuneCountInString(Stringify(v))
		n++
		total += l
		if l > longest {
			longest = l
		}
	}
	if n == 0 {
		return false
	}
	return longest >= LongTextMaxLen || float64(total)/float64(n) >= LongTextAvgLen
}

// LooksLikeIDByStats reports whether a column's values resemble opaque
// identifiers rather than codes, measures or counts:
//   - most values are long digit strings, or
//   - nearly every value is a distinct integer (banded by sample size), or
//   - integers spread over a range far wider than the sample.
func LooksLikeIDByStats(values []any) bool {
	strs := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		strs = append(strs, strings.TrimSpace(Stringify(v)))
	}
	if len(strs) == 0 {
		return false
	}

	longDigits := 0
	for _, s := range strs {
		if longDigitRe.MatchString(s) {
			longDigits++
		}
	}
	if float64(longDigits)/float64(len(strs)) >= IDLongDigitRatio {
		return true
	}

	nums := make([]float64, 0, len(strs))
	for _, s := range strs {
		if f, ok := parseNumber(s); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return false
	}

	n := len(nums)
	ints := 0
	minV, maxV := nums[0], nums[0]
	for _, f := range nums {
		if f == math.Trunc(f) {
			ints++
		}
		minV = math.Min(minV, f)
		maxV = math.Max(maxV, f)
	}
	intRatio := float64(ints) / float64(n)
	uniqRatio := float64(distinctStrings(strs)) / float64(len(strs))

	switch {
	case n >= IDLargeSample:
		if intRatio >= IDLargeRatio && uniqRatio >= IDLargeRatio {
			return true
		}
	case n >= IDSmallSample:
		if intRatio >= IDSmallRatio && uniqRatio >= IDSmallRatio {
			return true
		}
	}

	if n >= IDSmallSample && intRatio >= IDRangeIntRatio {
		if maxV-minV > float64(n)*IDRangeFactor {
			return true
		}
	}
	return false
}

func distinctStrings(strs []string) int {
	seen := make(map[string]struct{}, len(strs))
	for _, s := range strs {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// Cardinality counts distinct stringified values, nil included as "NULL".
func Cardinality(values []any) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[Stringify(v)] = struct{}{}
	}
	return len(seen)
}

// DuplicateRatio is (n - distinct) / n; zero for an empty column.
func DuplicateRatio(values []any) float64 {
	if len(values) == 0 {
		return 0
	}
	return float64(len(values)-Cardinality(values)) / float64(len(values))
}

// IntRatio is the share of all values (nulls included) that are whole numbers.
func IntRatio(values []any) float64 {
	if len(values) == 0 {
		return 0
	}
	ints := 0
	for _, v := range values {
		if IsIntLike(v) {
			ints++
		}
	}
	return float64(ints) / float64(len(values))
}

// AllNumeric reports whether every value coerces to a finite number.
func AllNumeric(values []any) bool {
	for _, v := range values {
		if _, ok := ToNumber(v); !ok {
			return false
		}
	}
	return len(values) > 0
}

func missingRatio(values []any) float64 {
	if len(values) == 0 {
		return 0
	}
	missing := 0
	for _, v := range values {
		if v == nil {
			missing++
		}
	}
	return float64(missing) / float64(len(values))
}

// hasVariance reports whether the non-null values hold at least two
// distinct values.
func hasVariance(values []any) bool {
	first := ""
	for _, v := range values {
		if v == nil {
			continue
		}
		k := identityKey(v)
		if first == "" {
			first = k
		} else if k != first {
			return true
		}
	}
	return false
}
