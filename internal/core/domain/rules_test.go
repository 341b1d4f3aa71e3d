package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldHideColumnByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"mrn", true},
		{"MRN", true},
		{"[mrn]", true},
		{"chart_no", true},
		{"환자등록번호", true},
		{"병록번호", true},
		{"person_source_value", true},
		{"provider_source_value", true},
		{"unit_source_value", true},
		{"specimen_concept_id", true},
		{"id", true},
		{"logid", true},
		{"row_pk", true},
		{"patient_key", true},
		{"person_id", true},
		{"visit_occurrence_id", true},
		{"care_site_id", true},
		{"visit_start_date", true},
		{"birth_datetime", true},
		{"note_text", true},
		{"description", true},

		{"gender_concept_id", false},
		{"visit_concept_id", false},
		{"drug_source_value", false},
		{"gender_source_value", false},
		{"gender", false},
		{"idx", false},
		{"paid", false},
		{"cnt", false},
		{"year_of_birth", false},
		{"진료과", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ShouldHideColumnByName(tt.name))
		})
	}
}

func TestRules_Explain(t *testing.T) {
	t.Parallel()
	rules := DefaultRules()

	rule, ok := rules.Explain("gender_concept_id")
	require.True(t, ok)
	assert.Equal(t, RuleAllowedConceptID, rule.Name)
	assert.Equal(t, ActionAllow, rule.Action)

	rule, ok = rules.Explain("MRN")
	require.True(t, ok)
	assert.Equal(t, RuleSensitiveIdentifier, rule.Name)

	rule, ok = rules.Explain("person_source_value")
	require.True(t, ok)
	assert.Equal(t, RuleForcedSourceValue, rule.Name)

	rule, ok = rules.Explain("person_id")
	require.True(t, ok)
	assert.Equal(t, RuleIdentifierPattern, rule.Name)

	rule, ok = rules.Explain("specimen_concept_id")
	require.True(t, ok)
	assert.Equal(t, RuleConceptIDSuffix, rule.Name)

	_, ok = rules.Explain("gender")
	assert.False(t, ok)
}

func TestRules_ListOrder(t *testing.T) {
	t.Parallel()

	var names []string
	for _, r := range DefaultRules().List() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		RuleSensitiveIdentifier, RuleForcedSourceValue, RuleAllowedConceptID,
		RuleAllowedSourceValue, RuleExactIdentifier, RuleConceptIDSuffix,
		RuleIdentifierPattern, RuleSourceValueSuffix, RuleDateName, RuleFreeTextName,
	}, names)
}

func TestIsSensitiveIdentifierName(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSensitiveIdentifierName("mrn"))
	assert.True(t, IsSensitiveIdentifierName("id"))
	assert.True(t, IsSensitiveIdentifierName("환자번호"))
	assert.True(t, IsSensitiveIdentifierName("registration_no"))
	assert.False(t, IsSensitiveIdentifierName("gender_concept_id"))
	assert.False(t, IsSensitiveIdentifierName("person_source_value"))
	assert.False(t, IsSensitiveIdentifierName("visit_occurrence_id"))
}

func TestRules_AllowLists(t *testing.T) {
	t.Parallel()
	rules := DefaultRules()

	assert.True(t, rules.IsAllowedConceptID("gender_concept_id"))
	assert.True(t, rules.IsAllowedConceptID("[Drug_Concept_ID]"))
	assert.False(t, rules.IsAllowedConceptID("specimen_concept_id"))

	assert.True(t, rules.IsAllowedSourceValue("drug_source_value"))
	assert.False(t, rules.IsAllowedSourceValue("person_source_value"))
	assert.False(t, rules.IsAllowedSourceValue("unit_source_value"))
}

func TestRules_Extend(t *testing.T) {
	t.Parallel()
	base := DefaultRules()

	ext, err := base.Extend(RuleOverrides{
		SensitivePatterns:     []string{"주민번호"},
		HidePatterns:          []string{"_memo$"},
		AllowConceptIDs:       []string{"Specimen_Concept_ID"},
		ForceSkipSourceValues: []string{"drug_source_value"},
	})
	require.NoError(t, err)

	assert.True(t, ext.ShouldHideColumnByName("환자_주민번호"))
	assert.True(t, ext.IsSensitiveIdentifierName("주민번호"))

	assert.True(t, ext.ShouldHideColumnByName("Visit_MEMO"))
	rule, ok := ext.Explain("visit_memo")
	require.True(t, ok)
	assert.Equal(t, RuleCustomHide, rule.Name)

	assert.False(t, ext.ShouldHideColumnByName("specimen_concept_id"))
	assert.True(t, ext.IsAllowedConceptID("specimen_concept_id"))

	assert.True(t, ext.ShouldHideColumnByName("drug_source_value"))
	assert.False(t, ext.IsAllowedSourceValue("drug_source_value"))

	// the base rules are unchanged
	assert.True(t, base.ShouldHideColumnByName("specimen_concept_id"))
	assert.False(t, base.ShouldHideColumnByName("drug_source_value"))
	assert.False(t, base.ShouldHideColumnByName("visit_memo"))
	assert.Len(t, base.List(), 10)
	assert.Len(t, ext.List(), 11)
}

func TestRules_ExtendInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := DefaultRules().Extend(RuleOverrides{HidePatterns: []string{"("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hide_patterns")

	_, err = DefaultRules().Extend(RuleOverrides{SensitivePatterns: []string{"[a-"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensitive_patterns")
}

func TestRuleOverrides_Empty(t *testing.T) {
	t.Parallel()
	assert.True(t, RuleOverrides{}.Empty())
	assert.False(t, RuleOverrides{HidePatterns: []string{"x"}}.Empty())
}
