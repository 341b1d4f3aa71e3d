package domain

import (
	"regexp"
	"strings"
)

var (
	delimiterReplacer = strings.NewReplacer("[", "", "]", "", `"`, "", "`", "")
	nonCanonRe        = regexp.MustCompile(`[^a-z0-9가-힣_]`)
)

// StripComments removes line (--) and block (/* */) comments. Comment
// markers inside quoted strings or identifiers are left alone.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			if i < len(sql) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SplitTopLevel splits s on sep, ignoring separators nested inside
// parentheses, square brackets or quotes. A backslash escapes the next
// byte inside quotes. Items are trimmed; empty items are dropped.
func SplitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = appendTrimmed(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return appendTrimmed(parts, s[start:])
}

func appendTrimmed(parts []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		parts = append(parts, s)
	}
	return parts
}

// StripDelimiters removes identifier quoting: [name], "name", `name`.
func StripDelimiters(s string) string {
	return strings.TrimSpace(delimiterReplacer.Replace(s))
}

// normalizeName is the form the name rules match against.
func normalizeName(name string) string {
	return strings.ToLower(StripDelimiters(name))
}

// canon additionally folds punctuation and spaces to underscores so token
// patterns like (^|_)cnt($|_) see "patient cnt" as two tokens.
func canon(name string) string {
	return nonCanonRe.ReplaceAllString(normalizeName(name), "_")
}

// lastSegment returns the part after the final dot of a qualified name.
func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
