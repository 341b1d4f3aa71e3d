package postgres

import (
	"context"
	"fmt"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	SampleMethodTablesample = "tablesample"
	SampleMethodLimit       = "limit"
)

// Sampler reads a bounded row sample from a table for profiling.
type Sampler struct {
	pool    *pgxpool.Pool
	schemas []string
}

func NewSampler(pool *pgxpool.Pool, schemas []string) *Sampler {
	return &Sampler{pool: pool, schemas: schemas}
}

func (s *Sampler) SampleTable(ctx context.Context, schema, tableName string, limit int) (*port.TableSample, error) {
	rel, err := lookupRelation(ctx, s.pool, s.schemas, schema, tableName)
	if err != nil {
		return nil, err
	}

	sample := &port.TableSample{Schema: rel.schema, Name: rel.name, RowEstimate: rel.rowEstimate}
	fqn := rel.qualifiedName()

	if pct := samplePercent(rel.rowEstimate, limit); pct > 0 && rel.sampleable() {
		// BERNOULLI samples rows, not pages, so small tables still return rows.
		rs, err := s.query(ctx, fmt.Sprintf("SELECT * FROM %s TABLESAMPLE BERNOULLI(%g) LIMIT %d", fqn, pct, limit))
		if err == nil && !rs.Empty() {
			sample.Method = SampleMethodTablesample
			sample.Rows = rs
			return sample, nil
		}
	}

	rs, err := s.query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", fqn, limit))
	if err != nil {
		return nil, fmt.Errorf("sampling rows: %w", err)
	}
	sample.Method = SampleMethodLimit
	sample.Rows = rs
	return sample, nil
}

func (s *Sampler) query(ctx context.Context, sql string) (*domain.ResultSet, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rowsToResultSet(rows)
}

// samplePercent picks a BERNOULLI percentage expected to yield about twice
// limit rows. It returns 0 when the table is small enough to read with a
// plain LIMIT.
func samplePercent(rowEstimate int64, limit int) float64 {
	if limit <= 0 || rowEstimate <= int64(limit)*2 {
		return 0
	}
	pct := float64(limit) * 2 * 100 / float64(rowEstimate)
	switch {
	case pct < 0.01:
		return 0.01
	case pct > 100:
		return 100
	}
	return pct
}
