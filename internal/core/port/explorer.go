package port

import (
	"context"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
)

// ColumnStats holds planner statistics for a single column.
type ColumnStats struct {
	NullFraction    float64                 `json:"null_fraction"`
	Cardinality     domain.CardinalityClass `json:"cardinality"`
	DistinctCount   int64                   `json:"distinct_count"`
	MostCommonVals  []string                `json:"most_common_vals,omitempty"`
	MostCommonFreqs []float64               `json:"most_common_freqs,omitempty"`
	MinValue        string                  `json:"min_value,omitempty"`
	MaxValue        string                  `json:"max_value,omitempty"`
}

type TableInfo struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	RowEstimate int64  `json:"row_estimate"`
	ColumnCount int    `json:"column_count"`
	Comment     string `json:"comment,omitempty"`
}

// ColumnInfo describes a catalog column. Hidden and HiddenBy report whether
// the result interpreter would keep this column out of summaries by name.
type ColumnInfo struct {
	Name         string          `json:"name"`
	DisplayName  string          `json:"display_name,omitempty"`
	DataType     string          `json:"data_type"`
	IsNullable   bool            `json:"is_nullable"`
	DefaultValue string          `json:"default_value,omitempty"`
	IsPrimaryKey bool            `json:"is_primary_key"`
	Comment      string          `json:"comment,omitempty"`
	Hidden       bool            `json:"hidden"`
	HiddenBy     string          `json:"hidden_by,omitempty"`
	Mask         domain.MaskType `json:"mask,omitempty"`
	Stats        *ColumnStats    `json:"stats,omitempty"`
}

type ForeignKey struct {
	ConstraintName   string `json:"constraint_name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type TableDetail struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Comment     string       `json:"comment,omitempty"`
	RowEstimate int64        `json:"row_estimate"`
	Columns     []ColumnInfo `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

type SchemaInfo struct {
	Name string `json:"name"`
}

// SchemaExplorer lists warehouse schemas and tables.
type SchemaExplorer interface {
	ListSchemas(ctx context.Context) ([]SchemaInfo, error)
	ListTables(ctx context.Context) ([]TableInfo, error)
	DescribeTable(ctx context.Context, schema, tableName string) (*TableDetail, error)
}
