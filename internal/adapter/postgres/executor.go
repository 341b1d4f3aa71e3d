package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs validated statements in a short transaction bounded by both
// a context deadline and a server-side statement_timeout.
type Executor struct {
	pool         *pgxpool.Pool
	readOnly     bool
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, readOnly bool, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		readOnly:     readOnly,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

// Execute returns at most maxRows rows. One extra row is fetched so the
// result can report truncation.
func (e *Executor) Execute(ctx context.Context, sql string) (*domain.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	stmt := sql
	if !isExplain(sql) {
		// EXPLAIN output cannot be nested in a subquery.
		stmt = fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", trimStatement(sql), e.maxRows+1)
	}

	var rs *domain.ResultSet
	err := pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{AccessMode: e.accessMode()}, func(tx pgx.Tx) error {
		timeout := strconv.FormatInt(e.queryTimeout.Milliseconds(), 10)
		if _, err := tx.Exec(ctx, "SELECT set_config('statement_timeout', $1, true)", timeout); err != nil {
			return fmt.Errorf("setting statement timeout: %w", err)
		}

		rows, err := tx.Query(ctx, stmt)
		if err != nil {
			return fmt.Errorf("executing query: %w", err)
		}
		defer rows.Close()

		rs, err = rowsToResultSet(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	rs.Limit(e.maxRows)
	return rs, nil
}

func isExplain(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "EXPLAIN")
}

// trimStatement drops a trailing semicolon so the statement can be nested.
func trimStatement(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.readOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}
