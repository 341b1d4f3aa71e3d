// Package policy loads the operator's YAML policy: rule extensions for the
// column classifier, display names, and per-table descriptions and masks.
package policy

import (
	"fmt"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled configuration loaded from a YAML file.
type Policy struct {
	Rules        domain.RuleOverrides `yaml:"rules"`
	DisplayNames domain.DisplayNames  `yaml:"display_names"`
	Context      ContextConfig        `yaml:"context"`
}

// ContextConfig maps fully-qualified table names (schema.table) to
// descriptions and column masks.
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's description, an optional table-scoped
// display label and an optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	DisplayName string          `yaml:"display_name,omitempty"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML accepts a plain string as shorthand for a description.
//
//	columns:
//	  visit_start_date: "Admission date"
//	  person_source_value:
//	    description: "Hospital patient number"
//	    display_name: "환자번호"
//	    mask: hash
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}

// ExtendRules extends base with the policy's rule overrides. A nil policy or
// empty overrides return base unchanged.
func (p *Policy) ExtendRules(base *domain.Rules) (*domain.Rules, error) {
	if base == nil {
		base = domain.DefaultRules()
	}
	if p == nil || p.Rules.Empty() {
		return base, nil
	}
	return base.Extend(p.Rules)
}

// Names returns the display-name dictionary (nil-safe).
func (p *Policy) Names() domain.DisplayNames {
	if p == nil {
		return nil
	}
	return p.DisplayNames
}
