package domain

import (
	"errors"
	"sort"
)

// ErrInvalidResultSet is returned when a result payload cannot be read as rows.
var ErrInvalidResultSet = errors.New("invalid result set")

// Row maps a column key to a scalar value (string, number, bool or nil).
type Row map[string]any

// ResultSet is an ordered sequence of rows sharing one column set.
// Columns carries the order reported by the SQL layer.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	// Truncated is set when the source held more rows than were read.
	Truncated bool `json:"truncated,omitempty"`
}

// NewResultSet builds a ResultSet. When columns is empty the first row's
// keys define the column set, sorted so repeated calls agree.
func NewResultSet(columns []string, rows []Row) *ResultSet {
	if len(columns) == 0 && len(rows) > 0 {
		columns = make([]string, 0, len(rows[0]))
		for k := range rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	return &ResultSet{Columns: columns, Rows: rows}
}

// Limit keeps the first n rows and flags the set as truncated when rows were
// dropped. n <= 0 leaves the set unchanged.
func (rs *ResultSet) Limit(n int) {
	if n <= 0 || len(rs.Rows) <= n {
		return
	}
	rs.Rows = rs.Rows[:n]
	rs.Truncated = true
}

// FromMaps adapts rows decoded as plain maps.
func FromMaps(columns []string, rows []map[string]any) *ResultSet {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row(r)
	}
	return NewResultSet(columns, out)
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Empty reports whether there is nothing to interpret.
func (rs *ResultSet) Empty() bool {
	return rs == nil || len(rs.Rows) == 0 || len(rs.Columns) == 0
}

// Values returns the column vector for col. Missing keys read as nil.
func (rs *ResultSet) Values(col string) []any {
	vals := make([]any, len(rs.Rows))
	for i, r := range rs.Rows {
		vals[i] = r[col]
	}
	return vals
}

// Maps returns the rows as plain maps (shared, not copied).
func (rs *ResultSet) Maps() []map[string]any {
	out := make([]map[string]any, len(rs.Rows))
	for i, r := range rs.Rows {
		out[i] = map[string]any(r)
	}
	return out
}

// AliasMap maps an output column key to the source column it was selected
// from, or nil when no single source column applies.
type AliasMap map[string]*string

// Source returns the source column for key, if one is known.
func (m AliasMap) Source(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	src, ok := m[key]
	if !ok || src == nil {
		return "", false
	}
	return *src, true
}

// Resolve returns the semantic name used by the name rules: the source
// column when known, otherwise the key itself.
func (m AliasMap) Resolve(key string) string {
	if src, ok := m.Source(key); ok {
		return src
	}
	return key
}

func strPtr(s string) *string { return &s }
