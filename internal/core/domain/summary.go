package domain

import (
	"fmt"
	"math"
)

// SummaryKind tags a ColumnSummary.
type SummaryKind string

const (
	KindCategorical       SummaryKind = "categorical"
	KindNumericContinuous SummaryKind = "numericContinuous"
)

// ColumnSummary describes one surfaced column. Categorical summaries carry
// Counts; continuous ones carry a Histogram.
type ColumnSummary struct {
	Kind   SummaryKind    `json:"type"`
	Counts map[string]int `json:"counts,omitempty"`
	*Histogram
}

// Histogram is the distribution of a continuous numeric column. Max is the
// true maximum even when binning clipped a long tail.
type Histogram struct {
	Mean         float64  `json:"mean"`
	Min          float64  `json:"min"`
	Max          float64  `json:"max"`
	Distribution []int    `json:"distribution"`
	BinLabels    []string `json:"binLabels"`
}

// Reasons recorded for hidden columns. Name rules report "name:<rule>".
const (
	ReasonMissingRatio    = "missing_ratio"
	ReasonUniform         = "uniform"
	ReasonSensitiveKey    = "sensitive_key"
	ReasonDateValues      = "date_values"
	ReasonLongText        = "long_text"
	ReasonIdentifierStats = "identifier_stats"
)

// ColumnDecision records why a column was surfaced or hidden.
type ColumnDecision struct {
	Column   string      `json:"column"`
	Source   string      `json:"source,omitempty"`
	Surfaced bool        `json:"surfaced"`
	Kind     SummaryKind `json:"kind,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Analysis is the classifier output with its per-column audit trail.
type Analysis struct {
	Summaries map[string]ColumnSummary `json:"summaries"`
	Decisions []ColumnDecision         `json:"decisions"`
}

// Hidden returns the number of columns that were not surfaced.
func (a *Analysis) Hidden() int {
	n := 0
	for _, d := range a.Decisions {
		if !d.Surfaced {
			n++
		}
	}
	return n
}

// Engine runs the interpretation heuristics against one rule set.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	rules *Rules
}

// NewEngine returns an engine bound to rules; nil selects DefaultRules.
func NewEngine(rules *Rules) *Engine {
	if rules == nil {
		rules = defaultRules
	}
	return &Engine{rules: rules}
}

// Rules returns the engine's name policy.
func (e *Engine) Rules() *Rules { return e.rules }

var defaultEngine = NewEngine(nil)

// AnalyzeSummary classifies the columns of rs with the default rules.
func AnalyzeSummary(rs *ResultSet, aliases AliasMap) map[string]ColumnSummary {
	return defaultEngine.AnalyzeSummary(rs, aliases)
}

// AnalyzeSummary returns a summary for every surfaced column of rs. Hidden
// and uninformative columns are absent. An empty result yields an empty map.
func (e *Engine) AnalyzeSummary(rs *ResultSet, aliases AliasMap) map[string]ColumnSummary {
	return e.Analyze(rs, aliases).Summaries
}

// Analyze is AnalyzeSummary plus the reason behind every column decision.
func (e *Engine) Analyze(rs *ResultSet, aliases AliasMap) *Analysis {
	out := &Analysis{Summaries: map[string]ColumnSummary{}}
	if rs.Empty() {
		return out
	}

	for _, col := range rs.Columns {
		values := rs.Values(col)
		d := ColumnDecision{Column: col}
		if src, ok := aliases.Source(col); ok {
			d.Source = src
		}

		if reason := e.hideReason(col, aliases.Resolve(col), values); reason != "" {
			d.Reason = reason
			out.Decisions = append(out.Decisions, d)
			continue
		}

		summary := summarize(values)
		out.Summaries[col] = summary
		d.Surfaced = true
		d.Kind = summary.Kind
		out.Decisions = append(out.Decisions, d)
	}
	return out
}

// hideReason runs validity, name and value filters in that order and
// returns the first reason to hide the column, or "".
func (e *Engine) hideReason(key, resolved string, values []any) string {
	if missingRatio(values) >= MaxMissingRatio {
		return ReasonMissingRatio
	}
	if !hasVariance(values) {
		return ReasonUniform
	}

	if rule, ok := e.rules.Explain(resolved); ok && rule.Action == ActionHide {
		return "name:" + rule.Name
	}
	if e.rules.IsSensitiveIdentifierName(key) || e.rules.IsSensitiveIdentifierName(resolved) {
		return ReasonSensitiveKey
	}

	dates := 0
	for _, v := range values {
		if LooksLikeDateValue(v) {
			dates++
		}
	}
	if float64(dates)/float64(max(len(values), 1)) >= DateValueRatio {
		return ReasonDateValues
	}
	if LooksLikeLongText(values) {
		return ReasonLongText
	}
	if !e.idExempt(resolved) && LooksLikeIDByStats(values) {
		return ReasonIdentifierStats
	}
	return ""
}

// idExempt reports clinically meaningful code columns that may look like
// identifiers by their values.
func (e *Engine) idExempt(name string) bool {
	return e.rules.IsAllowedConceptID(name) || e.rules.IsAllowedSourceValue(name)
}

func summarize(values []any) ColumnSummary {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := ToNumber(v); ok {
			nums = append(nums, f)
		}
	}

	if len(nums) == 0 {
		counts := make(map[string]int)
		for _, v := range values {
			counts[Stringify(v)]++
		}
		return ColumnSummary{Kind: KindCategorical, Counts: counts}
	}

	distinct := make(map[float64]int)
	for _, f := range nums {
		distinct[f]++
	}
	if len(distinct) <= DiscreteThreshold {
		counts := make(map[string]int, len(distinct))
		for f, n := range distinct {
			counts[formatNumber(f)] = n
		}
		return ColumnSummary{Kind: KindCategorical, Counts: counts}
	}

	return ColumnSummary{Kind: KindNumericContinuous, Histogram: histogram(nums)}
}

// histogram bins nums into HistogramBins equal-width bins. A long tail
// (raw max above TailRatio times the TailPercentile value) is clipped at
// the percentile and collected in one extra overflow bin.
func histogram(nums []float64) *Histogram {
	sum := 0.0
	lo, rawMax := nums[0], nums[0]
	for _, f := range nums {
		sum += f
		lo = math.Min(lo, f)
		rawMax = math.Max(rawMax, f)
	}

	p := Percentile(nums, TailPercentile)
	useTail := rawMax/math.Max(1, p) > TailRatio
	hi := rawMax
	if useTail {
		hi = p
	}

	step := math.Max(1, hi-lo) / HistogramBins
	bins := HistogramBins
	if useTail {
		bins++
	}
	dist := make([]int, bins)
	for _, f := range nums {
		if useTail && f > hi {
			dist[HistogramBins]++
			continue
		}
		idx := int(math.Floor((f - lo) / step))
		dist[min(HistogramBins-1, max(0, idx))]++
	}

	labels := make([]string, 0, bins)
	for i := 0; i < HistogramBins; i++ {
		start, end := lo+float64(i)*step, lo+float64(i+1)*step
		labels = append(labels, fmt.Sprintf("%d-%d", round(start), round(end)))
	}
	if useTail {
		labels = append(labels, fmt.Sprintf("≥ %d", round(hi)))
	}

	return &Histogram{
		Mean:         sum / float64(len(nums)),
		Min:          lo,
		Max:          rawMax,
		Distribution: dist,
		BinLabels:    labels,
	}
}
