package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleAction is what a matching name rule does to a column.
type RuleAction string

const (
	ActionHide  RuleAction = "hide"
	ActionAllow RuleAction = "allow"
)

// Rule names, in evaluation order.
const (
	RuleSensitiveIdentifier = "sensitive_identifier"
	RuleForcedSourceValue   = "forced_source_value"
	RuleAllowedConceptID    = "allowed_concept_id"
	RuleAllowedSourceValue  = "allowed_source_value"
	RuleExactIdentifier     = "exact_identifier"
	RuleConceptIDSuffix     = "concept_id_suffix"
	RuleIdentifierPattern   = "identifier_pattern"
	RuleSourceValueSuffix   = "source_value_suffix"
	RuleDateName            = "date_name"
	RuleFreeTextName        = "free_text_name"
	RuleCustomHide          = "custom_hide"
)

var conceptIDSuffixRe = regexp.MustCompile(`_concept_id$`)

// NameRule is one named predicate over a normalized column name. A rule
// matches when the name is in its exact-name list or matches any pattern.
type NameRule struct {
	Name     string
	Action   RuleAction
	names    map[string]struct{}
	patterns []*regexp.Regexp
}

// Matches reports whether the normalized name triggers the rule.
func (r NameRule) Matches(normalized string) bool {
	if _, ok := r.names[normalized]; ok {
		return true
	}
	for _, re := range r.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func (r NameRule) clone() NameRule {
	names := make(map[string]struct{}, len(r.names))
	for n := range r.names {
		names[n] = struct{}{}
	}
	return NameRule{
		Name:     r.Name,
		Action:   r.Action,
		names:    names,
		patterns: append([]*regexp.Regexp(nil), r.patterns...),
	}
}

func newRule(name string, action RuleAction, names []string, patterns ...string) NameRule {
	r := NameRule{Name: name, Action: action, names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		r.names[n] = struct{}{}
	}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

// Rules is the ordered name policy deciding which columns must never be
// surfaced. The first matching rule wins. A Rules value is immutable once
// built and safe for concurrent use.
type Rules struct {
	rules []NameRule
}

// DefaultRules returns the built-in clinical name policy.
func DefaultRules() *Rules {
	return &Rules{rules: []NameRule{
		newRule(RuleSensitiveIdentifier, ActionHide, nil,
			`(?i)(환자)?등록번호|환자번호|병록번호|차트번호`,
			`(?i)\b(mrn|chart(_?no)?|registration(_?no)?)\b`,
		),
		newRule(RuleForcedSourceValue, ActionHide, []string{
			"person_source_value", "provider_source_value", "location_source_value",
		}),
		newRule(RuleAllowedConceptID, ActionAllow, []string{
			"gender_concept_id", "race_concept_id", "ethnicity_concept_id",
			"visit_concept_id", "condition_concept_id", "drug_concept_id",
			"procedure_concept_id", "measurement_concept_id", "observation_concept_id",
		}),
		newRule(RuleAllowedSourceValue, ActionAllow, []string{
			"drug_source_value", "condition_source_value", "procedure_source_value",
			"gender_source_value", "race_source_value", "ethnicity_source_value",
		}),
		newRule(RuleExactIdentifier, ActionHide, []string{"id", "logid", "unique_device_id"}),
		newRule(RuleConceptIDSuffix, ActionHide, nil, `_concept_id$`),
		newRule(RuleIdentifierPattern, ActionHide, nil,
			`(^|[_.])(identifier|pk)($|_)`,
			`_id$`,
			`_key$`,
		),
		newRule(RuleSourceValueSuffix, ActionHide, nil, `_source_value$`),
		newRule(RuleDateName, ActionHide, nil,
			`_date$`,
			`_datetime$`,
			`_time$`,
			`(^|_)timestamp$`,
			`(^|_)birth_datetime$`,
			`(^|_)death_date$`,
			`(^|_)visit_(start|end)_date$`,
			`(^|_)condition_(start|end)_date$`,
			`(^|_)measurement_date$`,
		),
		newRule(RuleFreeTextName, ActionHide, nil,
			`(^|_)(content|description|desc|note|remark|remarks|comment|error_msg|text)($|_)`,
		),
	}}
}

// RuleOverrides extends the default policy. Patterns are matched
// case-insensitively against normalized names.
type RuleOverrides struct {
	SensitivePatterns     []string `yaml:"sensitive_patterns"`
	HidePatterns          []string `yaml:"hide_patterns"`
	AllowConceptIDs       []string `yaml:"allow_concept_ids"`
	AllowSourceValues     []string `yaml:"allow_source_values"`
	ForceSkipSourceValues []string `yaml:"force_skip_source_values"`
}

// Empty reports whether the overrides change nothing.
func (o RuleOverrides) Empty() bool {
	return len(o.SensitivePatterns) == 0 && len(o.HidePatterns) == 0 &&
		len(o.AllowConceptIDs) == 0 && len(o.AllowSourceValues) == 0 &&
		len(o.ForceSkipSourceValues) == 0
}

// Extend returns a copy of r with the overrides applied. r is unchanged.
func (r *Rules) Extend(o RuleOverrides) (*Rules, error) {
	out := &Rules{rules: make([]NameRule, len(r.rules))}
	for i, rule := range r.rules {
		out.rules[i] = rule.clone()
	}

	sensitive, err := compilePatterns(o.SensitivePatterns)
	if err != nil {
		return nil, fmt.Errorf("sensitive_patterns: %w", err)
	}
	hide, err := compilePatterns(o.HidePatterns)
	if err != nil {
		return nil, fmt.Errorf("hide_patterns: %w", err)
	}

	for i := range out.rules {
		rule := &out.rules[i]
		switch rule.Name {
		case RuleSensitiveIdentifier:
			rule.patterns = append(rule.patterns, sensitive...)
		case RuleForcedSourceValue:
			addNames(rule, o.ForceSkipSourceValues)
		case RuleAllowedConceptID:
			addNames(rule, o.AllowConceptIDs)
		case RuleAllowedSourceValue:
			addNames(rule, o.AllowSourceValues)
		}
	}

	if len(hide) > 0 {
		out.rules = append(out.rules, NameRule{
			Name:     RuleCustomHide,
			Action:   ActionHide,
			names:    map[string]struct{}{},
			patterns: hide,
		})
	}
	return out, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if !strings.HasPrefix(p, "(?i)") {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func addNames(rule *NameRule, names []string) {
	for _, n := range names {
		if n = normalizeName(n); n != "" {
			rule.names[n] = struct{}{}
		}
	}
}

// List returns the rules in evaluation order.
func (r *Rules) List() []NameRule {
	return append([]NameRule(nil), r.rules...)
}

// Explain returns the first rule matching name.
func (r *Rules) Explain(name string) (NameRule, bool) {
	n := normalizeName(name)
	for _, rule := range r.rules {
		if rule.Matches(n) {
			return rule, true
		}
	}
	return NameRule{}, false
}

// ShouldHideColumnByName reports whether a column must not be surfaced
// based on its name alone. Allow-listed concept ids and source values are
// never hidden here.
func (r *Rules) ShouldHideColumnByName(name string) bool {
	rule, ok := r.Explain(name)
	return ok && rule.Action == ActionHide
}

// IsSensitiveIdentifierName is the stricter, independent guard for
// patient-identifying names. Concept ids are never sensitive.
func (r *Rules) IsSensitiveIdentifierName(name string) bool {
	n := normalizeName(name)
	if conceptIDSuffixRe.MatchString(n) {
		return false
	}
	return r.matches(RuleSensitiveIdentifier, n) || r.matches(RuleExactIdentifier, n)
}

// IsAllowedConceptID reports an allow-listed *_concept_id column.
func (r *Rules) IsAllowedConceptID(name string) bool {
	n := normalizeName(name)
	return conceptIDSuffixRe.MatchString(n) && r.matches(RuleAllowedConceptID, n)
}

// IsAllowedSourceValue reports an allow-listed *_source_value column that
// is not on the forced-hide list.
func (r *Rules) IsAllowedSourceValue(name string) bool {
	n := normalizeName(name)
	return !r.matches(RuleForcedSourceValue, n) && r.matches(RuleAllowedSourceValue, n)
}

func (r *Rules) matches(ruleName, normalized string) bool {
	for _, rule := range r.rules {
		if rule.Name == ruleName {
			return rule.Matches(normalized)
		}
	}
	return false
}

var defaultRules = DefaultRules()

// ShouldHideColumnByName applies the default rules.
func ShouldHideColumnByName(name string) bool {
	return defaultRules.ShouldHideColumnByName(name)
}

// IsSensitiveIdentifierName applies the default rules.
func IsSensitiveIdentifierName(name string) bool {
	return defaultRules.IsSensitiveIdentifierName(name)
}
