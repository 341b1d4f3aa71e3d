package domain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// column builds a single-column result set.
func column(name string, values []any) *ResultSet {
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{name: v}
	}
	return NewResultSet([]string{name}, rows)
}

// table builds a result set from column vectors of equal length.
func table(cols []string, vectors ...[]any) *ResultSet {
	n := len(vectors[0])
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{}
		for c, col := range cols {
			rows[i][col] = vectors[c][i]
		}
	}
	return NewResultSet(cols, rows)
}

func decision(t *testing.T, a *Analysis, col string) ColumnDecision {
	t.Helper()
	for _, d := range a.Decisions {
		if d.Column == col {
			return d
		}
	}
	t.Fatalf("no decision for %q", col)
	return ColumnDecision{}
}

func TestAnalyze_NeverSurfacesSensitiveColumns(t *testing.T) {
	t.Parallel()

	ids := seq(10, func(i int) any { return fmt.Sprintf("P%03d", i) })
	rs := table(
		[]string{"person_source_value", "mrn", "등록번호", "x", "gender"},
		ids, ids, ids, ids,
		seq(10, func(i int) any { return []string{"M", "F"}[i%2] }),
	)
	mrn := "mrn"
	aliases := AliasMap{"x": &mrn}

	a := NewEngine(nil).Analyze(rs, aliases)

	assert.Equal(t, []string{"gender"}, keys(a.Summaries))
	assert.Equal(t, "name:"+RuleForcedSourceValue, decision(t, a, "person_source_value").Reason)
	assert.Equal(t, "name:"+RuleSensitiveIdentifier, decision(t, a, "mrn").Reason)
	assert.Equal(t, "name:"+RuleSensitiveIdentifier, decision(t, a, "등록번호").Reason)

	x := decision(t, a, "x")
	assert.False(t, x.Surfaced)
	assert.Equal(t, "mrn", x.Source)
	assert.Equal(t, "name:"+RuleSensitiveIdentifier, x.Reason)
	assert.Equal(t, 4, a.Hidden())
}

func keys(m map[string]ColumnSummary) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestAnalyze_HideReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		col    string
		values []any
		reason string
	}{
		{
			name:   "mostly missing",
			col:    "dept",
			values: []any{nil, nil, nil, nil, "A"},
			reason: ReasonMissingRatio,
		},
		{
			name:   "single value",
			col:    "dept",
			values: []any{"A", "A", nil, "A"},
			reason: ReasonUniform,
		},
		{
			name:   "date name",
			col:    "visit_start_date",
			values: []any{"x", "y"},
			reason: "name:" + RuleDateName,
		},
		{
			name:   "date values",
			col:    "event",
			values: []any{"2025-01-01", "2025-01-02", "2025-01-03", "n/a"},
			reason: ReasonDateValues,
		},
		{
			name: "long text",
			col:  "body",
			values: []any{
				strings.Repeat("a", 300), strings.Repeat("b", 10), strings.Repeat("c", 10),
			},
			reason: ReasonLongText,
		},
		{
			name:   "identifier values",
			col:    "visit_seq",
			values: seq(100, func(i int) any { return i + 1 }),
			reason: ReasonIdentifierStats,
		},
		{
			name:   "repeated identifier name",
			col:    "person_id",
			values: seq(500, func(i int) any { return 1 + i%200 }),
			reason: "name:" + RuleIdentifierPattern,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewEngine(nil).Analyze(column(tt.col, tt.values), nil)
			assert.Empty(t, a.Summaries)
			d := decision(t, a, tt.col)
			assert.False(t, d.Surfaced)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestAnalyzeSummary_AllowedConceptIDIsCategorical(t *testing.T) {
	t.Parallel()

	rs := column("gender_concept_id", seq(10, func(i int) any { return []int{8507, 8532}[i%2] }))
	got := AnalyzeSummary(rs, nil)

	require.Contains(t, got, "gender_concept_id")
	s := got["gender_concept_id"]
	assert.Equal(t, KindCategorical, s.Kind)
	assert.Equal(t, map[string]int{"8507": 5, "8532": 5}, s.Counts)
	assert.Nil(t, s.Histogram)
}

func TestAnalyzeSummary_AliasResolvesToAllowedSource(t *testing.T) {
	t.Parallel()

	src := "gender_concept_id"
	rs := column("g", seq(200, func(i int) any { return 8000 + i }))
	got := AnalyzeSummary(rs, AliasMap{"g": &src})

	require.Contains(t, got, "g", "allow-listed concept ids are exempt from identifier statistics")
	assert.Equal(t, KindNumericContinuous, got["g"].Kind)
}

func TestAnalyzeSummary_Categorical(t *testing.T) {
	t.Parallel()

	t.Run("strings with nulls", func(t *testing.T) {
		t.Parallel()
		got := AnalyzeSummary(column("dept", []any{"A", "B", "A", nil}), nil)
		assert.Equal(t, map[string]int{"A": 2, "B": 1, "NULL": 1}, got["dept"].Counts)
	})

	t.Run("discrete integers", func(t *testing.T) {
		t.Parallel()
		got := AnalyzeSummary(column("grade", []any{1, 2, 3, 1, 2, 3.0}), nil)
		assert.Equal(t, KindCategorical, got["grade"].Kind)
		assert.Equal(t, map[string]int{"1": 2, "2": 2, "3": 2}, got["grade"].Counts)
	})

	t.Run("booleans", func(t *testing.T) {
		t.Parallel()
		got := AnalyzeSummary(column("flag", []any{true, false, true}), nil)
		assert.Equal(t, map[string]int{"true": 2, "false": 1}, got["flag"].Counts)
	})

	t.Run("mixed values keep the numeric ones", func(t *testing.T) {
		t.Parallel()
		got := AnalyzeSummary(column("score", []any{"1", "2", "x", 2}), nil)
		assert.Equal(t, map[string]int{"1": 1, "2": 2}, got["score"].Counts)
	})
}

func TestAnalyzeSummary_YearIsNumericNotDate(t *testing.T) {
	t.Parallel()

	got := AnalyzeSummary(column("year_of_birth", seq(60, func(i int) any { return fmt.Sprint(1950 + i%41) })), nil)
	require.Contains(t, got, "year_of_birth")
	assert.Equal(t, KindNumericContinuous, got["year_of_birth"].Kind)
	assert.InDelta(t, 1950.0, got["year_of_birth"].Min, 1e-9)
	assert.InDelta(t, 1990.0, got["year_of_birth"].Max, 1e-9)
}

func TestAnalyzeSummary_HistogramWithTail(t *testing.T) {
	t.Parallel()

	values := seq(200, func(i int) any { return i % 100 })
	values = append(values, 10000)
	got := AnalyzeSummary(column("lab_value", values), nil)

	h := got["lab_value"].Histogram
	require.NotNil(t, h)
	assert.Len(t, h.Distribution, HistogramBins+1)
	assert.Len(t, h.BinLabels, HistogramBins+1)
	assert.Equal(t, "0-10", h.BinLabels[0])
	assert.Equal(t, "≥ 95", h.BinLabels[HistogramBins])
	assert.Equal(t, 9, h.Distribution[HistogramBins])
	assert.InDelta(t, 10000.0, h.Max, 1e-9)
	assert.InDelta(t, 0.0, h.Min, 1e-9)

	total := 0
	for _, n := range h.Distribution {
		total += n
	}
	assert.Equal(t, len(values), total)
}

func TestAnalyzeSummary_HistogramWithoutTail(t *testing.T) {
	t.Parallel()

	values := seq(200, func(i int) any { return i % 50 })
	got := AnalyzeSummary(column("lab_value", values), nil)

	h := got["lab_value"].Histogram
	require.NotNil(t, h)
	assert.Len(t, h.Distribution, HistogramBins)
	assert.Equal(t, "44-49", h.BinLabels[HistogramBins-1])
	assert.InDelta(t, 49.0, h.Max, 1e-9)
	assert.InDelta(t, 24.5, h.Mean, 1e-9)
}

func TestAnalyzeSummary_IdempotentAndSubset(t *testing.T) {
	t.Parallel()

	rs := table(
		[]string{"dept", "cnt", "mrn"},
		[]any{"A", "B", "C"},
		[]any{5, 3, 9},
		[]any{"M1", "M2", "M3"},
	)
	first := AnalyzeSummary(rs, nil)
	second := AnalyzeSummary(rs, nil)
	assert.Equal(t, first, second)

	for k := range first {
		assert.Contains(t, rs.Columns, k)
	}
	assert.NotContains(t, first, "mrn")
}

func TestAnalyzeSummary_Empty(t *testing.T) {
	t.Parallel()

	got := AnalyzeSummary(NewResultSet(nil, nil), nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, AnalyzeSummary(nil, nil))
}
