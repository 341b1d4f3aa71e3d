package domain

// CardinalityClass buckets a catalog column by its distinct-value count,
// on the same scale the result-set heuristics use.
type CardinalityClass string

const (
	CardinalityUnique          CardinalityClass = "unique"
	CardinalityNearUnique      CardinalityClass = "near_unique"
	CardinalityHighCardinality CardinalityClass = "high_cardinality"
	CardinalityLowCardinality  CardinalityClass = "low_cardinality"
	CardinalityEnumLike        CardinalityClass = "enum_like"
)

// ClassifyByDistinctCount classifies from absolute distinct and total row
// counts. Adapters convert engine statistics (pg_stats n_distinct) first.
//
// Enum-like columns summarize as categorical codes (<= DiscreteThreshold);
// low-cardinality columns can label a Top-N chart (<= MaxLabelCardinality).
// Unique and near-unique columns behave like identifiers.
func ClassifyByDistinctCount(distinctCount int64, totalRows int64) CardinalityClass {
	if totalRows > 0 && distinctCount == totalRows {
		return CardinalityUnique
	}
	if totalRows >= IDSmallSample {
		if float64(distinctCount)/float64(totalRows) >= IDSmallRatio {
			return CardinalityNearUnique
		}
	}

	switch {
	case distinctCount <= DiscreteThreshold:
		return CardinalityEnumLike
	case distinctCount <= MaxLabelCardinality:
		return CardinalityLowCardinality
	default:
		return CardinalityHighCardinality
	}
}

// Chartable reports whether a column of this class could label a chart.
func (c CardinalityClass) Chartable() bool {
	return c == CardinalityEnumLike || c == CardinalityLowCardinality
}
