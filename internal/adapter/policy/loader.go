package policy

import (
	"fmt"
	"os"
	"sort"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a policy document.
func Parse(data []byte) (*Policy, error) {
	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	if _, err := domain.DefaultRules().Extend(pol.Rules); err != nil {
		return fmt.Errorf("rules.%w", err)
	}
	for key := range pol.DisplayNames {
		if key == "" {
			return fmt.Errorf("display_names contains an empty key")
		}
	}
	masks := make(map[string]domain.MaskType)
	keys := make([]string, 0, len(pol.Context.Tables))
	for key := range pol.Context.Tables {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		tc := pol.Context.Tables[key]
		if key == "" {
			return fmt.Errorf("context.tables contains an empty key")
		}
		for col, cc := range tc.Columns {
			if col == "" {
				return fmt.Errorf("context.tables[%q].columns contains an empty key", key)
			}
			if !cc.Mask.Valid() {
				return fmt.Errorf("context.tables[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", key, col, cc.Mask)
			}
			if cc.Mask == "" {
				continue
			}
			// Query results are masked by column name, so one name gets one mask.
			if prev, ok := masks[col]; ok && prev != cc.Mask {
				return fmt.Errorf("column %q has conflicting masks %q and %q", col, prev, cc.Mask)
			}
			masks[col] = cc.Mask
		}
	}
	return nil
}
