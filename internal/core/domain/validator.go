package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
)

var (
	ErrEmptyQuery         = errors.New("empty query")
	ErrNotAllowed         = errors.New("only SELECT queries are allowed")
	ErrMultiStatement     = errors.New("multiple statements are not allowed")
	ErrParseFailed        = errors.New("failed to parse SQL")
	ErrNotFound           = errors.New("not found")
	ErrTableNotAllowed    = errors.New("table is not allowed")
	ErrFunctionNotAllowed = errors.New("function is not allowed")
	ErrUnsupported        = errors.New("not supported by this database")
)

// DefaultForbiddenFunctions blocks functions that sleep, touch the server
// filesystem or alter sessions from an analytics query.
var DefaultForbiddenFunctions = []string{
	"pg_sleep", "pg_sleep_for", "pg_sleep_until",
	"pg_read_file", "pg_read_binary_file", "pg_ls_dir",
	"lo_import", "lo_export", "dblink", "set_config",
	"pg_terminate_backend", "pg_cancel_backend",
}

// ValidatorOption configures a PgQueryValidator.
type ValidatorOption func(*PgQueryValidator)

// WithAllowedTables restricts queries to the named tables. Names may be
// bare ("person") or schema-qualified ("cdm.person"). CTE names are always
// allowed.
func WithAllowedTables(tables ...string) ValidatorOption {
	return func(v *PgQueryValidator) {
		if v.allowedTables == nil {
			v.allowedTables = make(map[string]struct{})
		}
		for _, t := range tables {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				v.allowedTables[t] = struct{}{}
			}
		}
	}
}

// WithForbiddenFunctions replaces the forbidden function list.
func WithForbiddenFunctions(names ...string) ValidatorOption {
	return func(v *PgQueryValidator) {
		v.forbidden = make(map[string]struct{}, len(names))
		for _, n := range names {
			v.forbidden[strings.ToLower(n)] = struct{}{}
		}
	}
}

// PgQueryValidator validates SQL with PostgreSQL's own parser. Only a single
// SELECT (or EXPLAIN) is accepted.
type PgQueryValidator struct {
	allowedTables map[string]struct{}
	forbidden     map[string]struct{}
}

func NewPgQueryValidator(opts ...ValidatorOption) *PgQueryValidator {
	v := &PgQueryValidator{}
	WithForbiddenFunctions(DefaultForbiddenFunctions...)(v)
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate rejects anything that isn't a single read-only SELECT over the
// allowed tables.
func (v *PgQueryValidator) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	if len(tree.Stmts) == 0 {
		return ErrEmptyQuery
	}

	if len(tree.Stmts) > 1 {
		return ErrMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return ErrEmptyQuery
	}

	switch n := stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		if n.SelectStmt.IntoClause != nil || len(n.SelectStmt.LockingClause) > 0 {
			return ErrNotAllowed
		}
	case *pg_query.Node_ExplainStmt:
		if n.ExplainStmt.Query.GetSelectStmt() == nil {
			return ErrNotAllowed
		}
	default:
		return ErrNotAllowed
	}

	return v.checkReferences(stmt)
}

// checkReferences walks the statement for table and function references.
func (v *PgQueryValidator) checkReferences(stmt *pg_query.Node) error {
	ctes := make(map[string]struct{})
	var tables []*pg_query.RangeVar
	var err error

	walkTree(stmt, func(m proto.Message) bool {
		switch n := m.(type) {
		case *pg_query.CommonTableExpr:
			ctes[strings.ToLower(n.Ctename)] = struct{}{}
		case *pg_query.RangeVar:
			tables = append(tables, n)
		case *pg_query.FuncCall:
			name := funcName(n)
			if _, bad := v.forbidden[name]; bad {
				err = fmt.Errorf("%w: %s", ErrFunctionNotAllowed, name)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	if v.allowedTables == nil {
		return nil
	}
	for _, rv := range tables {
		rel := strings.ToLower(rv.Relname)
		if _, ok := ctes[rel]; ok && rv.Schemaname == "" {
			continue
		}
		qualified := rel
		if rv.Schemaname != "" {
			qualified = strings.ToLower(rv.Schemaname) + "." + rel
		}
		_, bare := v.allowedTables[rel]
		_, full := v.allowedTables[qualified]
		if !bare && !full {
			return fmt.Errorf("%w: %s", ErrTableNotAllowed, qualified)
		}
	}
	return nil
}

// funcName returns the unqualified, lowercased function name.
func funcName(fc *pg_query.FuncCall) string {
	if len(fc.Funcname) == 0 {
		return ""
	}
	if s := fc.Funcname[len(fc.Funcname)-1].GetString_(); s != nil {
		return strings.ToLower(s.Sval)
	}
	return ""
}

// AllowedTables lists the configured table allow-list, sorted.
func (v *PgQueryValidator) AllowedTables() []string {
	out := make([]string, 0, len(v.allowedTables))
	for t := range v.allowedTables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
