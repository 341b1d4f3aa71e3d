package postgres

import (
	"fmt"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsToResultSet reads pgx.Rows into a ResultSet that keeps the column
// order of the statement. A repeated column name keeps its first position
// and its last value.
func rowsToResultSet(rows pgx.Rows) (*domain.ResultSet, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, fd := range fields {
		if !seen[fd.Name] {
			seen[fd.Name] = true
			columns = append(columns, fd.Name)
		}
	}

	var result []domain.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(domain.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(vals[i], fd.DataTypeOID)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return domain.NewResultSet(columns, result), nil
}

// normalizeValue converts driver values to the scalars the result
// interpreter reads: numbers, strings, booleans and nil.
func normalizeValue(v any, oid uint32) any {
	switch val := v.(type) {
	case nil:
		return nil
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		if oid == pgtype.DateOID {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return fmt.Sprintf("%d months %d days %dus", val.Months, val.Days, val.Microseconds)
	default:
		return v
	}
}
