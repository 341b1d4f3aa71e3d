package port

import (
	"context"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
)

// TableSample is a bounded set of rows read directly from a table.
type TableSample struct {
	Schema      string            `json:"schema"`
	Name        string            `json:"name"`
	RowEstimate int64             `json:"row_estimate"`
	Method      string            `json:"method"` // "tablesample" or "limit"
	Rows        *domain.ResultSet `json:"-"`
}

// TableSampler reads up to limit rows from a table without a user query.
type TableSampler interface {
	SampleTable(ctx context.Context, schema, tableName string, limit int) (*TableSample, error)
}

// TableProfile is the interpretation of a table sample.
type TableProfile struct {
	Schema       string         `json:"schema"`
	Name         string         `json:"name"`
	RowEstimate  int64          `json:"row_estimate"`
	SampledRows  int            `json:"sampled_rows"`
	SampleMethod string         `json:"sample_method"`
	Report       *domain.Report `json:"report"`
}
