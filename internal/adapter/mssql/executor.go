// Package mssql runs validated read queries against a SQL Server warehouse.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
)

// ErrExplainUnsupported is returned for EXPLAIN statements; SQL Server
// exposes plans through SHOWPLAN sessions instead.
var ErrExplainUnsupported = fmt.Errorf("EXPLAIN: %w", domain.ErrUnsupported)

// Open connects with the sqlserver driver and checks the connection.
func Open(ctx context.Context, dsn string, maxConns int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sql server connection: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sql server: %w", err)
	}
	return db, nil
}

type Executor struct {
	db           *sql.DB
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(db *sql.DB, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{db: db, maxRows: maxRows, queryTimeout: queryTimeout}
}

func (e *Executor) Execute(ctx context.Context, query string) (*domain.ResultSet, error) {
	if isExplain(query) {
		return nil, ErrExplainUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, limitQuery(query, e.maxRows+1))
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}
	typeNames := make([]string, len(types))
	for i, ct := range types {
		typeNames[i] = ct.DatabaseTypeName()
	}

	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(domain.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i], typeNames[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	rs := domain.NewResultSet(columns, out)
	rs.Limit(e.maxRows)
	return rs, nil
}

// limitQuery bounds a statement with TOP. ORDER BY inside a derived table
// is only legal alongside TOP, so ordered queries should carry their own.
func limitQuery(query string, maxRows int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", maxRows, trimStatement(query))
}

func trimStatement(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), "; \t\n")
}

func isExplain(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "EXPLAIN")
}

// normalizeValue maps driver values onto the scalars the engine reads.
func normalizeValue(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeBytes(val, strings.ToUpper(dbType))
	case time.Time:
		if strings.EqualFold(dbType, "DATE") {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.RFC3339)
	default:
		return v
	}
}

func normalizeBytes(b []byte, dbType string) any {
	switch dbType {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		d, err := decimal.NewFromString(string(b))
		if err != nil {
			return string(b)
		}
		return d
	case "UNIQUEIDENTIFIER":
		var id mssql.UniqueIdentifier
		if err := id.Scan(b); err != nil {
			return string(b)
		}
		return id.String()
	case "BINARY", "VARBINARY", "IMAGE", "TIMESTAMP", "ROWVERSION":
		return fmt.Sprintf("0x%X", b)
	default:
		return string(b)
	}
}
