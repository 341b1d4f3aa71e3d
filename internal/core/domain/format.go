package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	leadingSelectRe = regexp.MustCompile(`(?i)^select\s+`)
	selectRe        = regexp.MustCompile(`(?i)\s+select\s+`)
	fromRe          = regexp.MustCompile(`(?i)\s+from\s+`)
	joinRe          = regexp.MustCompile(`(?i)\s+((?:inner|left(?:\s+outer)?|right(?:\s+outer)?|full(?:\s+outer)?|cross)\s+)?join\s+`)
	onRe            = regexp.MustCompile(`(?i)\s+on\s+`)
	whereRe         = regexp.MustCompile(`(?i)\s+where\s+`)
	groupByRe       = regexp.MustCompile(`(?i)\s+group\s+by\s+`)
	havingRe        = regexp.MustCompile(`(?i)\s+having\s+`)
	orderByRe       = regexp.MustCompile(`(?i)\s+order\s+by\s+`)
	limitRe         = regexp.MustCompile(`(?i)\s+limit\s+`)
	boolOpRe        = regexp.MustCompile(`(?i)\s+(and|or)\s+`)
	spacesRe        = regexp.MustCompile(`\s+`)
	trailingSemiRe  = regexp.MustCompile(`\s*;\s*$`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
	sqlishRe        = regexp.MustCompile(`(?i)\b(select|with|exists|from|where|join|group\s+by|order\s+by|union|intersect|except)\b`)
	funcTailRe      = regexp.MustCompile(`[\w\]]$`)
)

// FormatSQLForDisplay lays a query out for reading: one clause per line,
// one select item per line annotated with its source column, boolean
// breaks in WHERE and HAVING, and indented subqueries. The result is for
// display only and is not guaranteed to be executable.
func FormatSQLForDisplay(sql string) string {
	s := strings.TrimSpace(StripComments(sql))
	if s == "" {
		return ""
	}

	if leadingSelectRe.MatchString(s) {
		s = leadingSelectRe.ReplaceAllString(s, "SELECT ")
	} else {
		s = replaceFirst(selectRe, s, "\nSELECT ")
	}
	s = replaceFirst(fromRe, s, "\nFROM ")
	s = joinRe.ReplaceAllStringFunc(s, func(m string) string {
		kind := strings.TrimSpace(joinRe.FindStringSubmatch(m)[1])
		if kind != "" {
			kind = strings.ToUpper(spacesRe.ReplaceAllString(kind, " ")) + " "
		}
		return "\n  " + kind + "JOIN "
	})
	s = onRe.ReplaceAllString(s, "\n    ON ")
	s = replaceFirst(whereRe, s, "\nWHERE ")
	s = replaceFirst(groupByRe, s, "\nGROUP BY ")
	s = replaceFirst(havingRe, s, "\nHAVING ")
	s = replaceFirst(orderByRe, s, "\nORDER BY ")
	s = replaceFirst(limitRe, s, "\nLIMIT ")

	s = alignSelectList(s, BuildAliasMap(sql))

	s = rewriteClause(s, "\nWHERE ", breakBoolOps)
	s = rewriteClause(s, "\nHAVING ", breakBoolOps)
	s = rewriteClause(s, "\nGROUP BY ", breakCommas)
	s = rewriteClause(s, "\nORDER BY ", breakCommas)

	s = indentSubqueries(s)

	s = trailingSemiRe.ReplaceAllString(s, "")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}

// alignSelectList puts each select item on its own line, padded so the
// source hints line up.
func alignSelectList(s string, aliases AliasMap) string {
	var start int
	switch i := strings.Index(s, "\nSELECT "); {
	case strings.HasPrefix(s, "SELECT "):
		start = len("SELECT ")
	case i >= 0:
		start = i + len("\nSELECT ")
	default:
		return s
	}
	end := strings.Index(s[start:], "\nFROM ")
	if end < 0 {
		return s
	}
	end += start

	items := SplitTopLevel(s[start:end], ',')
	if len(items) == 0 {
		return s
	}

	bodies := make([]string, len(items))
	comments := make([]string, len(items))
	width := 0
	for i, item := range items {
		body := spacesRe.ReplaceAllString(item, " ")
		key, _ := splitAlias(body)
		if i < len(items)-1 {
			body += ","
		}
		if src, ok := aliases.Source(key); ok && src != key {
			comments[i] = "  -- ← " + src
		}
		bodies[i] = body
		width = max(width, utf8.RuneCountInString(body))
	}

	var b strings.Builder
	for i, body := range bodies {
		b.WriteString("\n  ")
		b.WriteString(body)
		if comments[i] != "" {
			b.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(body)))
			b.WriteString(comments[i])
		}
	}
	return s[:start-1] + b.String() + s[end:]
}

var clauseHeads = []string{"\nWHERE ", "\nGROUP BY ", "\nHAVING ", "\nORDER BY ", "\nLIMIT "}

// rewriteClause applies fn to the body of the clause starting at head,
// up to the next clause head.
func rewriteClause(s, head string, fn func(string) string) string {
	start := strings.Index(s, head)
	if start < 0 {
		return s
	}
	bodyStart := start + len(head)
	end := len(s)
	for _, h := range clauseHeads {
		if h == head {
			continue
		}
		if i := strings.Index(s[bodyStart:], h); i >= 0 && bodyStart+i < end {
			end = bodyStart + i
		}
	}
	return s[:bodyStart] + fn(s[bodyStart:end]) + s[end:]
}

func breakBoolOps(body string) string {
	return boolOpRe.ReplaceAllStringFunc(body, func(m string) string {
		return "\n  " + strings.ToUpper(strings.TrimSpace(m)) + " "
	})
}

func breakCommas(body string) string {
	return strings.Join(SplitTopLevel(body, ','), ",\n  ")
}

// indentSubqueries breaks parenthesized blocks that contain SQL keywords
// onto indented lines. Function calls and IN lists stay inline; quoted
// strings and bracketed identifiers are skipped.
func indentSubqueries(s string) string {
	var out strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			out.WriteByte(c)
			if c == quote && s[i-1] != '\\' {
				quote = 0
			}
			continue
		case c == '\'' || c == '"' || c == '[':
			quote = c
			if c == '[' {
				quote = ']'
			}
			out.WriteByte(c)
			continue
		case c != '(':
			out.WriteByte(c)
			continue
		}

		end := matchingParen(s, i)
		inner := s[i+1 : end]
		if !sqlishRe.MatchString(inner) || funcTailRe.MatchString(out.String()) {
			out.WriteString(s[i : min(end+1, len(s))])
			i = end
			continue
		}

		indent := currentIndent(out.String())
		var lines []string
		for _, line := range strings.Split(indentSubqueries(strings.TrimSpace(inner)), "\n") {
			lines = append(lines, indent+"  "+strings.TrimRight(line, " \t"))
		}
		out.WriteString("(\n" + strings.Join(lines, "\n") + "\n" + indent + ")")
		i = end
	}
	return out.String()
}

// matchingParen returns the index of the ')' closing the '(' at open, or
// len(s) when it is unbalanced.
func matchingParen(s string, open int) int {
	depth := 0
	var quote byte
	for j := open; j < len(s); j++ {
		c := s[j]
		if quote != 0 {
			if c == quote && s[j-1] != '\\' {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[':
			quote = ']'
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return len(s)
}

func currentIndent(s string) string {
	line := s[strings.LastIndexByte(s, '\n')+1:]
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
