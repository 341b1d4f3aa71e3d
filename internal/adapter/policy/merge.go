package policy

import (
	"strings"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
)

// MergeTableDetail enriches a TableDetail with the policy's context.
// Descriptions only fill empty comments, so COMMENT ON values in the
// database take precedence. Labels and masks from the policy always win.
func MergeTableDetail(detail *port.TableDetail, ctx ContextConfig) {
	if detail == nil {
		return
	}

	tc, ok := ctx.lookup(detail.Schema, detail.Name)
	if !ok {
		return
	}

	if detail.Comment == "" && tc.Description != "" {
		detail.Comment = tc.Description
	}

	for i, col := range detail.Columns {
		cc, ok := tc.Columns[col.Name]
		if !ok {
			continue
		}
		if col.Comment == "" && cc.Description != "" {
			detail.Columns[i].Comment = cc.Description
		}
		if cc.DisplayName != "" {
			detail.Columns[i].DisplayName = cc.DisplayName
		}
		if cc.Mask != "" {
			detail.Columns[i].Mask = cc.Mask
		}
	}
}

// MergeTableInfoList fills empty table comments from the policy.
func MergeTableInfoList(tables []port.TableInfo, ctx ContextConfig) {
	for i, t := range tables {
		if tc, ok := ctx.lookup(t.Schema, t.Name); ok && t.Comment == "" && tc.Description != "" {
			tables[i].Comment = tc.Description
		}
	}
}

// MaskSpec flattens every column mask in the policy into a column-name
// keyed map, used to mask ad-hoc query results whose source table is unknown.
func MaskSpec(ctx ContextConfig) map[string]domain.MaskType {
	spec := make(map[string]domain.MaskType)
	for _, tc := range ctx.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				spec[col] = cc.Mask
			}
		}
	}
	return spec
}

// TableMasks returns the masks declared for one table.
func TableMasks(ctx ContextConfig, schema, table string) map[string]domain.MaskType {
	tc, ok := ctx.lookup(schema, table)
	if !ok {
		return nil
	}
	out := make(map[string]domain.MaskType)
	for col, cc := range tc.Columns {
		if cc.Mask != "" {
			out[col] = cc.Mask
		}
	}
	return out
}

// lookup matches schema.table exactly, then case-insensitively.
func (c ContextConfig) lookup(schema, table string) (TableContext, bool) {
	key := schema + "." + table
	if tc, ok := c.Tables[key]; ok {
		return tc, true
	}
	for k, tc := range c.Tables {
		if strings.EqualFold(k, key) {
			return tc, true
		}
	}
	return TableContext{}, false
}
