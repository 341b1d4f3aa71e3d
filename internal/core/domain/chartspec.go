package domain

// ChartOrigin records which decision path produced a ChartSpec.
type ChartOrigin string

const (
	OriginPreAggregated ChartOrigin = "pre_aggregated"
	OriginTwoColumn     ChartOrigin = "two_column"
	OriginFallback      ChartOrigin = "fallback"
)

// ChartSpec is the single (label, count) pairing driving the Top-N chart.
type ChartSpec struct {
	ColumnPair
	Origin ChartOrigin `json:"origin"`
}

// TopChartSpec applies the default rules.
func TopChartSpec(rs *ResultSet, aliases AliasMap, preAgg *ColumnPair) *ChartSpec {
	return defaultEngine.TopChartSpec(rs, aliases, preAgg)
}

// TopChartSpec picks at most one (label, count) pair for a Top-N bar chart:
// a confirmed pre-aggregation first, then the two-column heuristic, then a
// general fallback. It returns nil when no safe, meaningful pairing exists.
func (e *Engine) TopChartSpec(rs *ResultSet, aliases AliasMap, preAgg *ColumnPair) *ChartSpec {
	if rs.Empty() {
		return nil
	}
	c := newColumns(rs, aliases)

	if preAgg != nil && c.has(preAgg.LabelKey) && c.has(preAgg.CountKey) && preAgg.LabelKey != preAgg.CountKey {
		if !e.labelBlocked(c, preAgg.LabelKey) && e.countLike(c, preAgg.CountKey) {
			return &ChartSpec{ColumnPair: *preAgg, Origin: OriginPreAggregated}
		}
	}

	if len(rs.Columns) == 2 {
		if pair, ok := e.twoColumnPair(c); ok && !e.labelBlocked(c, pair.LabelKey) {
			return &ChartSpec{ColumnPair: pair, Origin: OriginTwoColumn}
		}
	}

	pair, ok := e.fallbackPair(c)
	if !ok || e.labelBlocked(c, pair.LabelKey) {
		return nil
	}
	return &ChartSpec{ColumnPair: pair, Origin: OriginFallback}
}

func (c *columns) has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// countLike: a count-sounding name that is not a measurement name, with
// mostly integer values.
func (e *Engine) countLike(c *columns, key string) bool {
	return c.countHint(key) && !c.continuousHint(key) && IntRatio(c.values[key]) >= CountIntRatio
}

// labelBlocked reports a column that must never label a chart.
func (e *Engine) labelBlocked(c *columns, key string) bool {
	if e.hiddenOrSensitive(c, key) {
		return true
	}
	return !e.idExempt(c.aliases.Resolve(key)) && LooksLikeIDByStats(c.values[key])
}

// countBlocked reports a numeric column that only looks summable: a
// measurement by name, or an identifier by its name or values.
func (e *Engine) countBlocked(c *columns, key string) bool {
	if c.continuousHint(key) || e.hiddenOrSensitive(c, key) {
		return true
	}
	return LooksLikeIDByStats(c.values[key])
}

func (c *columns) lowCard(key string) bool { return c.cardinality(key) <= MaxLabelCardinality }

func (e *Engine) twoColumnPair(c *columns) (ColumnPair, bool) {
	a, b := c.rs.Columns[0], c.rs.Columns[1]

	aCount, bCount := e.countLike(c, a), e.countLike(c, b)
	switch {
	case aCount && !bCount:
		return ColumnPair{LabelKey: b, CountKey: a}, true
	case bCount && !aCount:
		return ColumnPair{LabelKey: a, CountKey: b}, true
	}

	for _, o := range [][2]string{{b, a}, {a, b}} {
		label, count := o[0], o[1]
		if c.numeric(count) && c.lowCard(label) &&
			IntRatio(c.values[count]) >= DiscreteLabelIntRatio && !e.countBlocked(c, count) {
			return ColumnPair{LabelKey: label, CountKey: count}, true
		}
	}
	return ColumnPair{}, false
}

func (e *Engine) fallbackPair(c *columns) (ColumnPair, bool) {
	value, bestScore := "", -1
	for _, col := range c.rs.Columns {
		if !c.numeric(col) {
			continue
		}
		score := 0
		if e.countLike(c, col) {
			score = countHintScore
		}
		if score > bestScore {
			value, bestScore = col, score
		}
	}
	if value == "" || !e.countLike(c, value) {
		return ColumnPair{}, false
	}

	candidates := make([]string, 0, len(c.rs.Columns))
	for _, col := range c.rs.Columns {
		if col != value && c.lowCard(col) && !e.labelBlocked(c, col) {
			candidates = append(candidates, col)
		}
	}
	label := lowestCardinality(c, candidates, func(string) bool { return true })
	if label == "" {
		return ColumnPair{}, false
	}
	return ColumnPair{LabelKey: label, CountKey: value}, true
}
