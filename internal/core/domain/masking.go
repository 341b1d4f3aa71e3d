package domain

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// MaskType is a redaction strategy applied to a result column before rows
// leave the server.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid accepts the known strategies and "" (no mask).
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask returns value transformed by maskType. Nil stays nil. Hash and
// partial masks return strings whatever the input type.
func ApplyMask(value any, maskType MaskType) any {
	if value == nil {
		return nil
	}

	switch maskType {
	case MaskRedact:
		return "***"
	case MaskHash:
		h := sha256.Sum256([]byte(Stringify(value)))
		return fmt.Sprintf("%x", h)
	case MaskPartial:
		return maskPartial(Stringify(value))
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial keeps the last four runes.
func maskPartial(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

// ResolveMasks maps the columns of rs to masks configured by source column
// name. A column matches on its own key or on the column it was selected
// from, so aliasing a masked column does not unmask it.
func ResolveMasks(rs *ResultSet, aliases AliasMap, bySource map[string]MaskType) map[string]MaskType {
	if len(bySource) == 0 || rs == nil {
		return nil
	}
	lookup := make(map[string]MaskType, len(bySource))
	for name, m := range bySource {
		lookup[normalizeName(name)] = m
	}

	out := make(map[string]MaskType)
	for _, col := range rs.Columns {
		if m, ok := lookup[normalizeName(col)]; ok {
			out[col] = m
			continue
		}
		if m, ok := lookup[normalizeName(aliases.Resolve(col))]; ok {
			out[col] = m
		}
	}
	return out
}

// SensitiveColumnMasks redacts every column whose key or source column is a
// sensitive patient identifier by name.
func SensitiveColumnMasks(rs *ResultSet, aliases AliasMap, rules *Rules) map[string]MaskType {
	if rs == nil {
		return nil
	}
	if rules == nil {
		rules = defaultRules
	}
	out := make(map[string]MaskType)
	for _, col := range rs.Columns {
		if rules.IsSensitiveIdentifierName(col) || rules.IsSensitiveIdentifierName(aliases.Resolve(col)) {
			out[col] = MaskRedact
		}
	}
	return out
}

// MergeMasks combines mask sets; later sets win per column.
func MergeMasks(sets ...map[string]MaskType) map[string]MaskType {
	out := make(map[string]MaskType)
	for _, set := range sets {
		for col, m := range set {
			if m != "" {
				out[col] = m
			}
		}
	}
	return out
}

// MaskRows applies masks to rs in place.
func MaskRows(rs *ResultSet, masks map[string]MaskType) {
	if rs == nil || len(masks) == 0 {
		return
	}
	for _, row := range rs.Rows {
		for col, m := range masks {
			if v, ok := row[col]; ok {
				row[col] = ApplyMask(v, m)
			}
		}
	}
}
