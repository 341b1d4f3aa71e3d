package domain

// Tuning surface for the result-set heuristics. Each value is a product
// decision and is exercised by its own test.
const (
	// MaxMissingRatio drops a column when at least this share of rows is null.
	MaxMissingRatio = 0.8

	// DateValueRatio hides a column when at least this share of values look like dates.
	DateValueRatio = 0.7

	// LongTextMaxLen and LongTextAvgLen mark free-text columns.
	LongTextMaxLen = 256
	LongTextAvgLen = 64

	// DiscreteThreshold is the largest distinct-value count a numeric
	// column may have and still be summarized as categorical codes.
	DiscreteThreshold = 15

	// HistogramBins is the number of equal-width bins for continuous columns.
	HistogramBins = 10

	// TailPercentile and TailRatio control long-tail binning: when the raw
	// maximum exceeds TailRatio times the TailPercentile value, binning is
	// clipped there and an overflow bin is appended.
	TailPercentile = 0.95
	TailRatio      = 1.5

	// DuplicateRatioThreshold is the largest label duplicate ratio that
	// still looks like GROUP BY output.
	DuplicateRatioThreshold = 0.02

	// MaxLabelCardinality caps the distinct values of a chart label column.
	MaxLabelCardinality = 100

	// CountIntRatio is the integer share a column needs to count as a count.
	CountIntRatio = 0.95

	// DiscreteLabelIntRatio is the integer share a numeric label column needs.
	DiscreteLabelIntRatio = 0.9
)

// Identifier-by-statistics bands.
const (
	// IDLongDigitRatio: share of values that are 6+ digit numeric strings.
	IDLongDigitRatio = 0.8

	// Large samples (n >= IDLargeSample) need both ratios at IDLargeRatio.
	IDLargeSample = 100
	IDLargeRatio  = 0.98

	// Small samples (IDSmallSample <= n < IDLargeSample) use the relaxed band.
	IDSmallSample = 20
	IDSmallRatio  = 0.9

	// Sparse wide-range integers: range above IDRangeFactor * n.
	IDRangeIntRatio = 0.95
	IDRangeFactor   = 50
)

// Scoring weights used when choosing between candidate columns.
const (
	countHintScore = 10
	labelHintScore = 3
)

// DefaultTopN is the number of bars shown before the rest collapse into "others".
const DefaultTopN = 10
