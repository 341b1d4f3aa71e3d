package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// relation is a resolved catalog table or view.
type relation struct {
	schema      string
	name        string
	kind        string // pg_class.relkind
	comment     string
	rowEstimate int64
}

func (r relation) qualifiedName() string {
	return quoteIdent(r.schema) + "." + quoteIdent(r.name)
}

// sampleable reports whether TABLESAMPLE applies to the relation.
func (r relation) sampleable() bool {
	switch r.kind {
	case "r", "p", "m":
		return true
	}
	return false
}

// lookupRelation resolves tableName in schema, or across the visible schemas
// when schema is empty.
func lookupRelation(ctx context.Context, q querier, schemas []string, schema, tableName string) (relation, error) {
	var (
		pred string
		args = []any{tableName}
	)
	if schema != "" {
		pred = "n.nspname = $2"
		args = append(args, schema)
	} else {
		var predArgs []any
		pred, predArgs = schemaPredicate("n.nspname", schemas, 2)
		args = append(args, predArgs...)
	}

	rel := relation{name: tableName}
	err := q.QueryRow(ctx, fmt.Sprintf(queryRelation, pred), args...).
		Scan(&rel.schema, &rel.kind, &rel.comment, &rel.rowEstimate)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return relation{}, notFound(tableName, schema, schemas)
	case err != nil:
		return relation{}, fmt.Errorf("resolving table %q: %w", tableName, err)
	}
	return rel, nil
}

func notFound(tableName, schema string, schemas []string) error {
	switch {
	case schema != "":
		return fmt.Errorf("table %q %w in schema %q", tableName, domain.ErrNotFound, schema)
	case len(schemas) > 0:
		return fmt.Errorf("table %q %w in schemas %v", tableName, domain.ErrNotFound, schemas)
	}
	return fmt.Errorf("table %q %w", tableName, domain.ErrNotFound)
}

// schemaPredicate restricts column to schemas, numbering placeholders from
// first. With no schemas it excludes information_schema and pg_* schemas.
func schemaPredicate(column string, schemas []string, first int) (string, []any) {
	if len(schemas) == 0 {
		return fmt.Sprintf(`%[1]s <> 'information_schema' AND %[1]s NOT LIKE 'pg\_%%'`, column), nil
	}
	return fmt.Sprintf("%s = ANY($%d::text[])", column, first), []any{schemas}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
