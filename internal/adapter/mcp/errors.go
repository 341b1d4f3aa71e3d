package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/choibumgyu/HYU-CDW/internal/adapter/resultfile"
	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
)

// pgQueryCanceled is the SQLSTATE raised when statement_timeout fires.
const pgQueryCanceled = "57014"

// userFacing errors describe the caller's input and are returned verbatim.
var userFacing = []error{
	domain.ErrEmptyQuery,
	domain.ErrNotAllowed,
	domain.ErrMultiStatement,
	domain.ErrParseFailed,
	domain.ErrTableNotAllowed,
	domain.ErrFunctionNotAllowed,
	domain.ErrNotFound,
	domain.ErrUnsupported,
	domain.ErrInvalidResultSet,
	resultfile.ErrQueryFailed,
}

// sanitizeError converts err into a message safe to return to the client.
// Anything that is not caller input or a timeout is logged in full and
// replaced by a generic message.
func sanitizeError(logger *slog.Logger, err error, action string) string {
	for _, target := range userFacing {
		if errors.Is(err, target) {
			return err.Error()
		}
	}

	if isTimeout(err) {
		return "query timed out: narrow the filter or aggregate before selecting rows"
	}

	logger.Error("tool failed",
		slog.String("action", action),
		slog.String("error.message", err.Error()),
	)
	return fmt.Sprintf("internal error while trying to %s; check server logs for details", action)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgQueryCanceled
}
