package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksCountName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"cnt", "patient_count", "Total", "n", "num_visits", "환자수", "건수", "visit count"} {
		assert.True(t, LooksCountName(name), name)
	}
	for _, name := range []string{"gender", "account", "name", "drug_concept_id", "age"} {
		assert.False(t, LooksCountName(name), name)
	}
}

func TestLooksContinuousName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"age", "avg_age", "value_as_number", "bmi", "length_of_stay_days"} {
		assert.True(t, LooksContinuousName(name), name)
	}
	for _, name := range []string{"cnt", "gender", "visit_count"} {
		assert.False(t, LooksContinuousName(name), name)
	}
}

func TestDetectPreAggregated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rs   *ResultSet
		want *ColumnPair
	}{
		{
			name: "label and count",
			rs:   table([]string{"dept", "cnt"}, []any{"A", "B", "C"}, []any{5, 3, 9}),
			want: &ColumnPair{LabelKey: "dept", CountKey: "cnt"},
		},
		{
			name: "count first",
			rs:   table([]string{"cnt", "dept"}, []any{5, 3, 9}, []any{"A", "B", "C"}),
			want: &ColumnPair{LabelKey: "dept", CountKey: "cnt"},
		},
		{
			name: "no numeric column",
			rs:   table([]string{"dept", "ward"}, []any{"A", "B"}, []any{"W1", "W2"}),
		},
		{
			name: "single column",
			rs:   column("cnt", []any{1, 2, 3}),
		},
		{
			name: "repeated labels are raw rows",
			rs:   table([]string{"dept", "cnt"}, []any{"A", "A", "B"}, []any{5, 3, 9}),
		},
		{
			name: "concept id labels a three column aggregate",
			rs: table([]string{"drug_concept_id", "drug_name", "patient_count"},
				[]any{1112807, 1125315, 1127433},
				[]any{"aspirin", "acetaminophen", "ibuprofen"},
				[]any{40, 25, 10},
			),
			want: &ColumnPair{LabelKey: "drug_concept_id", CountKey: "patient_count"},
		},
		{
			name: "sensitive label",
			rs:   table([]string{"mrn", "cnt"}, []any{"M1", "M2", "M3"}, []any{1, 1, 2}),
		},
		{
			name: "hangul names",
			rs:   table([]string{"진단명", "환자수"}, []any{"당뇨", "고혈압", "천식"}, []any{120, 98, 30}),
			want: &ColumnPair{LabelKey: "진단명", CountKey: "환자수"},
		},
		{
			name: "empty",
			rs:   NewResultSet([]string{"dept", "cnt"}, nil),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectPreAggregated(tt.rs, nil))
		})
	}
}

func TestDetectPreAggregated_UsesAliasSources(t *testing.T) {
	t.Parallel()

	rs := table([]string{"k", "n"}, []any{"P1", "P2", "P3"}, []any{1, 2, 3})
	src := "person_source_value"
	assert.Nil(t, DetectPreAggregated(rs, AliasMap{"k": &src}), "an alias must not launder a hidden column")

	dept := "dept_name"
	got := DetectPreAggregated(rs, AliasMap{"k": &dept})
	require.NotNil(t, got)
	assert.Equal(t, ColumnPair{LabelKey: "k", CountKey: "n"}, *got)
}
