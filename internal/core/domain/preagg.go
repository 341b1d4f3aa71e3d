package domain

import (
	"regexp"
	"strings"
)

var (
	countNameRes = []*regexp.Regexp{
		regexp.MustCompile(`(^|_)(count|cnt|n|num|number|total|sum|건수|횟수|수)($|_)`),
		regexp.MustCompile(`(person|patient|visit|drug|condition|measurement|observation)_count$`),
		regexp.MustCompile(`(환자수|건수|횟수)$`),
	}
	continuousNameRe = regexp.MustCompile(
		`(^|_)(age|days?|duration|period|value(_as_number)?|amount|cost|price|score|rate|ratio|bmi|height|weight|systolic|diastolic|level|lab|measure)(_|$)`)

	labelHints = []string{"concept_id", "source_value", "concept", "concept_name", "name", "desc", "label"}
)

// LooksCountName reports a column name that reads as a count or total.
func LooksCountName(name string) bool {
	c := canon(name)
	for _, re := range countNameRes {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}

// LooksContinuousName reports a column name that reads as a measurement.
func LooksContinuousName(name string) bool {
	return continuousNameRe.MatchString(canon(name))
}

// ColumnPair is a (label, count) pairing of two distinct result columns.
type ColumnPair struct {
	LabelKey string `json:"labelKey"`
	CountKey string `json:"countKey"`
}

// columns caches per-column vectors for one result set.
type columns struct {
	rs      *ResultSet
	aliases AliasMap
	values  map[string][]any
}

func newColumns(rs *ResultSet, aliases AliasMap) *columns {
	c := &columns{rs: rs, aliases: aliases, values: make(map[string][]any, len(rs.Columns))}
	for _, col := range rs.Columns {
		c.values[col] = rs.Values(col)
	}
	return c
}

// names returns the key and, when different, its resolved source.
func (c *columns) names(key string) []string {
	if src, ok := c.aliases.Source(key); ok && src != key {
		return []string{key, src}
	}
	return []string{key}
}

func (c *columns) countHint(key string) bool {
	for _, n := range c.names(key) {
		if LooksCountName(n) {
			return true
		}
	}
	return false
}

func (c *columns) continuousHint(key string) bool {
	for _, n := range c.names(key) {
		if LooksContinuousName(n) {
			return true
		}
	}
	return false
}

func (c *columns) labelHint(key string) bool {
	for _, n := range c.names(key) {
		cn := canon(n)
		for _, h := range labelHints {
			if strings.Contains(cn, h) {
				return true
			}
		}
	}
	return false
}

func (c *columns) numeric(key string) bool { return AllNumeric(c.values[key]) }

func (c *columns) cardinality(key string) int { return Cardinality(c.values[key]) }

func (c *columns) stringish(key string) bool {
	for _, v := range c.values[key] {
		if _, ok := v.(string); !ok && v != nil {
			return false
		}
	}
	return true
}

// hiddenOrSensitive checks the key and its resolved source against both
// name guards.
func (e *Engine) hiddenOrSensitive(c *columns, key string) bool {
	for _, n := range c.names(key) {
		if e.rules.ShouldHideColumnByName(n) || e.rules.IsSensitiveIdentifierName(n) {
			return true
		}
	}
	return false
}

// DetectPreAggregated applies the default rules.
func DetectPreAggregated(rs *ResultSet, aliases AliasMap) *ColumnPair {
	return defaultEngine.DetectPreAggregated(rs, aliases)
}

// DetectPreAggregated reports whether rs already holds GROUP BY style
// (label, count) output and returns that pairing, or nil for raw rows.
func (e *Engine) DetectPreAggregated(rs *ResultSet, aliases AliasMap) *ColumnPair {
	if rs.Empty() || len(rs.Columns) < 2 {
		return nil
	}
	c := newColumns(rs, aliases)

	var numeric []string
	for _, col := range rs.Columns {
		if c.numeric(col) {
			numeric = append(numeric, col)
		}
	}
	if len(numeric) == 0 {
		return nil
	}

	var label, count string
	if len(rs.Columns) == 2 {
		var ok bool
		if label, count, ok = e.orientPair(c); !ok {
			return nil
		}
	} else {
		count = e.pickCountColumn(c, numeric)
		if label = e.pickLabelColumn(c, count); label == "" {
			return nil
		}
	}

	if c.countHint(label) && !c.countHint(count) && c.numeric(label) {
		label, count = count, label
	}

	if label == count || !e.displayable(c, label, count) {
		return nil
	}
	if !c.numeric(count) || DuplicateRatio(c.values[label]) > DuplicateRatioThreshold {
		return nil
	}
	return &ColumnPair{LabelKey: label, CountKey: count}
}

func (e *Engine) displayable(c *columns, key, count string) bool {
	return key != count && !e.hiddenOrSensitive(c, key)
}

// pickCountColumn returns the numeric column scoring highest on count
// likeness; the first column wins ties.
func (e *Engine) pickCountColumn(c *columns, numeric []string) string {
	best, bestScore := "", -1
	for _, col := range numeric {
		score := 0
		if c.countHint(col) {
			score += countHintScore
		}
		if IntRatio(c.values[col]) >= CountIntRatio {
			score++
		}
		if score > bestScore {
			best, bestScore = col, score
		}
	}
	return best
}

// pickLabelColumn searches the displayable columns for a dimension: a
// name hint first, then low-cardinality text, then discrete integers.
func (e *Engine) pickLabelColumn(c *columns, count string) string {
	var displayable []string
	for _, col := range c.rs.Columns {
		if e.displayable(c, col, count) {
			displayable = append(displayable, col)
		}
	}
	if len(displayable) == 0 {
		return ""
	}

	for _, col := range displayable {
		if c.labelHint(col) {
			return col
		}
	}

	if col := lowestCardinality(c, displayable, c.stringish); col != "" {
		return col
	}

	discrete := func(col string) bool {
		return c.numeric(col) && IntRatio(c.values[col]) >= DiscreteLabelIntRatio
	}
	if col := lowestCardinality(c, displayable, discrete); col != "" {
		return col
	}
	return displayable[0]
}

// lowestCardinality returns the candidate passing keep with the fewest
// distinct values in (1, MaxLabelCardinality]. Earlier columns win ties.
func lowestCardinality(c *columns, candidates []string, keep func(string) bool) string {
	best, bestCard := "", 0
	for _, col := range candidates {
		if !keep(col) {
			continue
		}
		card := c.cardinality(col)
		if card <= 1 || card > MaxLabelCardinality {
			continue
		}
		if best == "" || card < bestCard {
			best, bestCard = col, card
		}
	}
	return best
}

// orientPair scores both (label, count) orientations of a two-column
// result and returns the better one. The first column is the label on ties.
func (e *Engine) orientPair(c *columns) (label, count string, ok bool) {
	a, b := c.rs.Columns[0], c.rs.Columns[1]

	best := 0.0
	for _, o := range [][2]string{{a, b}, {b, a}} {
		l, n := o[0], o[1]
		if !c.numeric(n) || !e.displayable(c, l, n) {
			continue
		}
		score := IntRatio(c.values[n]) + 1/float64(max(1, c.cardinality(l)))
		if c.countHint(n) {
			score += countHintScore
		}
		if c.countHint(l) {
			score -= countHintScore
		}
		if c.labelHint(l) {
			score += labelHintScore
		}
		if !ok || score > best {
			label, count, best, ok = l, n, score, true
		}
	}
	return label, count, ok
}
