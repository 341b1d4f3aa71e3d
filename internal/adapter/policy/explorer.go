package policy

import (
	"context"

	"github.com/choibumgyu/HYU-CDW/internal/core/port"
)

// PolicyExplorer overlays the policy's table context (descriptions, column
// labels and masks) on catalog results. A nil policy passes results through.
type PolicyExplorer struct {
	inner   port.SchemaExplorer
	context ContextConfig
}

func NewPolicyExplorer(inner port.SchemaExplorer, pol *Policy) *PolicyExplorer {
	pe := &PolicyExplorer{inner: inner}
	if pol != nil {
		pe.context = pol.Context
	}
	return pe
}

// ListSchemas is not affected by the policy.
func (p *PolicyExplorer) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	return p.inner.ListSchemas(ctx)
}

func (p *PolicyExplorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	tables, err := p.inner.ListTables(ctx)
	if err == nil && len(p.context.Tables) > 0 {
		MergeTableInfoList(tables, p.context)
	}
	return tables, err
}

func (p *PolicyExplorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail, err := p.inner.DescribeTable(ctx, schema, tableName)
	if err == nil && len(p.context.Tables) > 0 {
		MergeTableDetail(detail, p.context)
	}
	return detail, err
}
