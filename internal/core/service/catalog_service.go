package service

import (
	"context"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
)

// CatalogService exposes the warehouse catalog annotated with the rule set,
// so callers see up front which columns a result summary will leave out.
type CatalogService struct {
	explorer port.SchemaExplorer
	rules    *domain.Rules
	names    domain.DisplayNames
}

func NewCatalogService(explorer port.SchemaExplorer, rules *domain.Rules, names domain.DisplayNames) *CatalogService {
	if rules == nil {
		rules = domain.DefaultRules()
	}
	return &CatalogService{explorer: explorer, rules: rules, names: names}
}

func (s *CatalogService) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	return s.explorer.ListSchemas(ctx)
}

func (s *CatalogService) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	return s.explorer.ListTables(ctx)
}

// DescribeTable returns the table with every column annotated.
func (s *CatalogService) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail, err := s.explorer.DescribeTable(ctx, schema, tableName)
	if err != nil {
		return nil, err
	}
	for i := range detail.Columns {
		s.annotate(&detail.Columns[i])
	}
	return detail, nil
}

func (s *CatalogService) annotate(col *port.ColumnInfo) {
	if col.DisplayName == "" {
		col.DisplayName = s.names.Label(col.Name)
	}
	rule, ok := s.rules.Explain(col.Name)
	if ok && rule.Action == domain.ActionHide {
		col.Hidden = true
		col.HiddenBy = rule.Name
	}
	if col.Mask == "" && s.rules.IsSensitiveIdentifierName(col.Name) {
		col.Mask = domain.MaskRedact
	}
}
