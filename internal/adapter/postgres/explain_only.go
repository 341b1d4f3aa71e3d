package postgres

import (
	"context"
	"strings"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
)

// ExplainOnlyExecutor lets the planner see every statement but never runs
// one: plain statements gain an EXPLAIN prefix and EXPLAIN ANALYZE is
// downgraded to a plain EXPLAIN.
type ExplainOnlyExecutor struct {
	inner port.QueryExecutor
}

func NewExplainOnlyExecutor(inner port.QueryExecutor) *ExplainOnlyExecutor {
	return &ExplainOnlyExecutor{inner: inner}
}

func (e *ExplainOnlyExecutor) Execute(ctx context.Context, sql string) (*domain.ResultSet, error) {
	return e.inner.Execute(ctx, planOnly(sql))
}

// executingOptions are EXPLAIN options that only make sense when the
// statement actually runs.
var executingOptions = map[string]bool{
	"ANALYZE": true,
	"ANALYSE": true,
	"TIMING":  true,
}

func planOnly(sql string) string {
	stmt := trimStatement(sql)
	if !isExplain(stmt) {
		return "EXPLAIN " + stmt
	}

	rest := strings.TrimSpace(stmt[len("EXPLAIN"):])
	upper := strings.ToUpper(rest)
	switch {
	case strings.HasPrefix(upper, "ANALYZE "), strings.HasPrefix(upper, "ANALYSE "):
		return "EXPLAIN " + strings.TrimSpace(rest[len("ANALYZE"):])
	case strings.HasPrefix(rest, "("):
		end := strings.Index(rest, ")")
		if end < 0 {
			return stmt
		}
		var kept []string
		for _, opt := range strings.Split(rest[1:end], ",") {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				continue
			}
			name := strings.ToUpper(strings.Fields(opt)[0])
			if executingOptions[name] {
				continue
			}
			kept = append(kept, opt)
		}
		body := strings.TrimSpace(rest[end+1:])
		if len(kept) == 0 {
			return "EXPLAIN " + body
		}
		return "EXPLAIN (" + strings.Join(kept, ", ") + ") " + body
	}
	return stmt
}
