package port

import (
	"context"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
)

// QueryExecutor runs a validated statement and returns its rows in the
// column order reported by the driver.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) (*domain.ResultSet, error)
}
