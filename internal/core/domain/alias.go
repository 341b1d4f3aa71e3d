package domain

import (
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
)

// AliasMethod records which path produced an AliasMap.
type AliasMethod string

const (
	AliasParser  AliasMethod = "parser"
	AliasLexical AliasMethod = "lexical"
	AliasNone    AliasMethod = "none"
)

var (
	selectListRe  = regexp.MustCompile(`(?is)select\s+(.+?)\s+from\s+`)
	selectQualRe  = regexp.MustCompile(`(?i)^(distinct|all|top\s*\(?\s*\d+\s*\)?(\s+percent)?)\s+`)
	explicitAsRe  = regexp.MustCompile("(?i)\\s+as\\s+(\\[[^\\]]+\\]|\"[^\"]+\"|`[^`]+`|[^\\s,]+)\\s*$")
	implicitAsRe  = regexp.MustCompile("^(.*\\S)\\s+(\\[[^\\]]+\\]|\"[^\"]+\"|`[^`]+`|[\\p{L}_][\\p{L}\\p{N}_$]*)\\s*$")
	bareColumnRe  = regexp.MustCompile("^(\\[[^\\]]+\\]|\"[^\"]+\"|`[^`]+`|[\\p{L}_][\\p{L}\\p{N}_$]*)(\\.(\\[[^\\]]+\\]|\"[^\"]+\"|`[^`]+`|[\\p{L}_][\\p{L}\\p{N}_$]*))*$")
	dottedSpaceRe = regexp.MustCompile(`\s*\.\s*`)
	trailTokenRe  = regexp.MustCompile(`(\[[^\]]+\]|[^\s,()]+)\s*$`)
	numericTokRe  = regexp.MustCompile(`^[-+]?\d`)
)

// Trailing words that end an expression rather than name an alias.
var expressionTerminators = map[string]bool{
	"end": true, "null": true, "true": true, "false": true,
	"asc": true, "desc": true, "distinct": true,
}

// BuildAliasMap maps each output column of a SELECT to the source column it
// was selected from. The PostgreSQL parser is tried first; when it rejects
// the text (other dialects, fragments) a lexical splitter takes over. It
// never fails: unusable input yields an empty map.
func BuildAliasMap(sql string) AliasMap {
	m, _ := ResolveAliases(sql)
	return m
}

// ResolveAliases is BuildAliasMap that also reports which path was taken.
func ResolveAliases(sql string) (AliasMap, AliasMethod) {
	text := strings.TrimSpace(StripComments(sql))
	if text == "" {
		return AliasMap{}, AliasNone
	}

	tree, err := pg_query.Parse(text)
	if err != nil {
		m := lexicalAliasMap(text)
		if len(m) == 0 {
			return m, AliasNone
		}
		return m, AliasLexical
	}

	out := AliasMap{}
	if len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return out, AliasNone
	}
	sel := outermostSelect(tree.Stmts[0].Stmt.GetSelectStmt())
	if sel == nil {
		return out, AliasNone
	}

	for _, target := range sel.TargetList {
		rt := target.GetResTarget()
		if rt == nil || rt.Val == nil {
			continue
		}
		key := StripDelimiters(rt.Name)
		if key == "" {
			cr := rt.Val.GetColumnRef()
			if cr == nil {
				continue // unaliased expression
			}
			name, ok := columnRefName(cr)
			if !ok {
				continue // *
			}
			key = name
		}
		out[key] = expressionSource(rt.Val)
	}
	return out, AliasParser
}

// outermostSelect unwraps set operations (left branch) and star-only
// wrappers, preferring a SELECT that projects named columns over the
// subqueries in its FROM clause.
func outermostSelect(sel *pg_query.SelectStmt) *pg_query.SelectStmt {
	if sel == nil {
		return nil
	}
	if sel.Op != pg_query.SetOperation_SETOP_NONE && sel.Larg != nil {
		return outermostSelect(sel.Larg)
	}
	if len(sel.TargetList) > 0 && !onlyStars(sel.TargetList) {
		return sel
	}
	for _, from := range sel.FromClause {
		sub := from.GetRangeSubselect()
		if sub == nil || sub.Subquery == nil {
			continue
		}
		if found := outermostSelect(sub.Subquery.GetSelectStmt()); found != nil {
			return found
		}
	}
	if len(sel.TargetList) > 0 {
		return sel
	}
	return nil
}

// onlyStars reports a target list of nothing but * or t.* items.
func onlyStars(targets []*pg_query.Node) bool {
	for _, t := range targets {
		rt := t.GetResTarget()
		if rt == nil || rt.Val == nil {
			return false
		}
		if _, ok := columnRefName(rt.Val.GetColumnRef()); ok || rt.Val.GetColumnRef() == nil {
			return false
		}
	}
	return true
}

// columnRefName returns the last field of a column reference:
// c."Email" -> Email. A trailing * reports false.
func columnRefName(cr *pg_query.ColumnRef) (string, bool) {
	if cr == nil || len(cr.Fields) == 0 {
		return "", false
	}
	s := cr.Fields[len(cr.Fields)-1].GetString_()
	if s == nil || s.Sval == "" {
		return "", false
	}
	return s.Sval, true
}

// expressionSource picks the column an output value derives from.
func expressionSource(n *pg_query.Node) *string {
	if cr := n.GetColumnRef(); cr != nil {
		if name, ok := columnRefName(cr); ok {
			return strPtr(name)
		}
		return nil
	}

	if fc := n.GetFuncCall(); fc != nil {
		if fc.AggStar || len(fc.Args) != 1 {
			return nil
		}
		if name, ok := columnRefName(fc.Args[0].GetColumnRef()); ok {
			return strPtr(name)
		}
		return nil
	}

	switch n.Node.(type) {
	case *pg_query.Node_CaseExpr, *pg_query.Node_AExpr, *pg_query.Node_BoolExpr,
		*pg_query.Node_TypeCast, *pg_query.Node_CoalesceExpr, *pg_query.Node_MinMaxExpr,
		*pg_query.Node_NullTest:
		return firstColumnRef(n)
	}
	return nil
}

func firstColumnRef(n *pg_query.Node) *string {
	var found *string
	walkTree(n, func(m proto.Message) bool {
		cr, ok := m.(*pg_query.ColumnRef)
		if !ok {
			return true
		}
		if name, ok := columnRefName(cr); ok {
			found = strPtr(name)
			return false
		}
		return true
	})
	return found
}

// lexicalAliasMap is the degraded path: split the first SELECT list on
// top-level commas and read aliases and sources off the item text.
func lexicalAliasMap(sql string) AliasMap {
	out := AliasMap{}
	m := selectListRe.FindStringSubmatch(sql)
	if m == nil {
		return out
	}
	list := selectQualRe.ReplaceAllString(strings.TrimSpace(m[1]), "")

	for _, item := range SplitTopLevel(list, ',') {
		key, expr := splitAlias(item)
		if key == "" || key == "*" {
			continue
		}
		out[key] = lexicalSource(expr)
	}
	return out
}

// splitAlias separates "expr AS alias", "expr alias" and bare column items.
// Unaliased expressions return an empty key.
func splitAlias(item string) (key, expr string) {
	if loc := explicitAsRe.FindStringSubmatchIndex(item); loc != nil {
		return StripDelimiters(item[loc[2]:loc[3]]), strings.TrimSpace(item[:loc[0]])
	}

	collapsed := dottedSpaceRe.ReplaceAllString(item, ".")
	if bareColumnRe.MatchString(collapsed) {
		return StripDelimiters(lastSegment(collapsed)), collapsed
	}

	if sm := implicitAsRe.FindStringSubmatch(item); sm != nil {
		alias := sm[2]
		if !expressionTerminators[strings.ToLower(alias)] && !strings.HasSuffix(sm[1], ".") {
			return StripDelimiters(alias), strings.TrimSpace(sm[1])
		}
	}
	return "", item
}

// lexicalSource takes the last dotted segment of the expression's trailing
// token. Function calls, literals and stars have no source.
func lexicalSource(expr string) *string {
	expr = strings.TrimSpace(dottedSpaceRe.ReplaceAllString(expr, "."))
	if expr == "" || strings.HasSuffix(expr, ")") {
		return nil
	}
	sm := trailTokenRe.FindStringSubmatch(expr)
	if sm == nil {
		return nil
	}
	tok := sm[1]
	if strings.HasPrefix(tok, "'") || numericTokRe.MatchString(tok) {
		return nil
	}
	src := StripDelimiters(lastSegment(tok))
	if src == "" || src == "*" {
		return nil
	}
	return strPtr(src)
}
