package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Explorer reads the warehouse catalog from pg_catalog and pg_stats.
type Explorer struct {
	pool    *pgxpool.Pool
	schemas []string // empty means all non-system schemas
}

func NewExplorer(pool *pgxpool.Pool, schemas []string) *Explorer {
	return &Explorer{pool: pool, schemas: schemas}
}

func (e *Explorer) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	pred, args := schemaPredicate("n.nspname", e.schemas, 1)
	rows, err := e.pool.Query(ctx, fmt.Sprintf(queryListSchemas, pred), args...)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	schemas, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (port.SchemaInfo, error) {
		var s port.SchemaInfo
		err := row.Scan(&s.Name)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning schemas: %w", err)
	}
	return schemas, nil
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	pred, args := schemaPredicate("n.nspname", e.schemas, 1)
	rows, err := e.pool.Query(ctx, fmt.Sprintf(queryListTables, pred), args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (port.TableInfo, error) {
		var t port.TableInfo
		err := row.Scan(&t.Schema, &t.Name, &t.Type, &t.RowEstimate, &t.ColumnCount, &t.Comment)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning tables: %w", err)
	}
	return tables, nil
}

// DescribeTable resolves the relation, then loads its columns, foreign keys
// and planner statistics in a single batch.
func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	rel, err := lookupRelation(ctx, e.pool, e.schemas, schema, tableName)
	if err != nil {
		return nil, err
	}

	detail := &port.TableDetail{
		Schema:      rel.schema,
		Name:        rel.name,
		Comment:     rel.comment,
		RowEstimate: rel.rowEstimate,
	}
	var stats map[string]*port.ColumnStats

	batch := &pgx.Batch{}
	batch.Queue(queryColumns, rel.schema, rel.name).Query(func(rows pgx.Rows) error {
		detail.Columns, err = pgx.CollectRows(rows, scanColumn)
		return err
	})
	batch.Queue(queryForeignKeys, rel.schema, rel.name).Query(func(rows pgx.Rows) error {
		detail.ForeignKeys, err = pgx.CollectRows(rows, scanForeignKey)
		return err
	})
	// Never-analyzed tables and views have no pg_stats rows.
	batch.Queue(queryColumnStats, rel.schema, rel.name).Query(func(rows pgx.Rows) error {
		stats, err = collectStats(rows, rel.rowEstimate)
		return err
	})
	if err := e.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("describing %s: %w", rel.qualifiedName(), err)
	}

	for i := range detail.Columns {
		detail.Columns[i].Stats = stats[detail.Columns[i].Name]
	}
	return detail, nil
}

func scanColumn(row pgx.CollectableRow) (port.ColumnInfo, error) {
	var c port.ColumnInfo
	err := row.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.DefaultValue, &c.Comment, &c.IsPrimaryKey)
	return c, err
}

func scanForeignKey(row pgx.CollectableRow) (port.ForeignKey, error) {
	var fk port.ForeignKey
	err := row.Scan(&fk.ConstraintName, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn)
	return fk, err
}

// collectStats keys pg_stats rows by column. Cardinality uses the scale the
// result interpreter applies, so an enum-like column here is one a query
// over it would summarize as categorical codes.
func collectStats(rows pgx.Rows, rowEstimate int64) (map[string]*port.ColumnStats, error) {
	defer rows.Close()

	out := make(map[string]*port.ColumnStats)
	for rows.Next() {
		var (
			name      string
			nullFrac  float64
			nDistinct float64
			mcv       []string
			mcf       []float64
			histogram []string
		)
		if err := rows.Scan(&name, &nullFrac, &nDistinct, &mcv, &mcf, &histogram); err != nil {
			return nil, err
		}

		distinct := pgDistinctToAbsolute(nDistinct, rowEstimate)
		st := &port.ColumnStats{
			NullFraction:  nullFrac,
			DistinctCount: distinct,
			Cardinality:   domain.ClassifyByDistinctCount(distinct, rowEstimate),
		}
		// Common values only where a chart label could come from this column.
		if st.Cardinality.Chartable() {
			st.MostCommonVals = mcv
			st.MostCommonFreqs = mcf
		}
		if len(histogram) >= 2 {
			st.MinValue = histogram[0]
			st.MaxValue = histogram[len(histogram)-1]
		}
		out[name] = st
	}
	return out, rows.Err()
}

// pgDistinctToAbsolute turns pg_stats.n_distinct into a count. Negative
// values are a fraction of the row count (-1 means every row is distinct).
func pgDistinctToAbsolute(nDistinct float64, rowEstimate int64) int64 {
	if nDistinct < 0 {
		return int64(math.Round(-nDistinct * float64(rowEstimate)))
	}
	return int64(math.Round(nDistinct))
}
