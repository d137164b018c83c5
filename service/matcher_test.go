package service

import (
	"reflect"
	"testing"
	"time"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

func matcherContract(clauses ...model.Clause) *model.Contract {
	return &model.Contract{
		ID:            "c-1",
		Tenant:        "tenant1",
		Jurisdictions: []string{"GDPR"},
		Version:       1,
		Status:        model.ContractActive,
		IngestState:   model.IngestReady,
		Clauses:       clauses,
	}
}

func matcherRule(id string, clauseTypes, terms []string) *model.Rule {
	return &model.Rule{
		ID:            id,
		Version:       1,
		Jurisdiction:  "GDPR",
		ClauseTypes:   clauseTypes,
		RequiredTerms: terms,
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Weight:        8,
		Status:        model.RuleActive,
	}
}

func TestMatcherMissingClause(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseConfidentiality, Text: "All information is confidential."},
	)
	rule := matcherRule("gdpr-retention", []string{model.ClauseDataRetention}, []string{"retention period"})

	findings := m.Match(contract, []*model.Rule{rule})
	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Kind != model.KindMissingClause {
		t.Errorf("Expected missing_clause, got %s", f.Kind)
	}
	if f.ClauseIndex != -1 {
		t.Errorf("Expected no clause reference, got %d", f.ClauseIndex)
	}
	if f.RuleID != "gdpr-retention" || f.RuleVersion != 1 {
		t.Errorf("Expected rule reference gdpr-retention v1, got %s v%d", f.RuleID, f.RuleVersion)
	}
	if f.ContractID != "c-1" || f.ContractVersion != 1 {
		t.Errorf("Expected contract reference c-1 v1, got %s v%d", f.ContractID, f.ContractVersion)
	}
}

func TestMatcherSatisfiedRule(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseDataRetention,
			Text: "Personal data is kept for the retention period of twelve months and removed by secure deletion."},
	)
	rule := matcherRule("gdpr-retention", []string{model.ClauseDataRetention}, []string{"retention period", "deletion"})

	findings := m.Match(contract, []*model.Rule{rule})
	if len(findings) != 0 {
		t.Errorf("Expected no findings for satisfied rule, got %d", len(findings))
	}
}

func TestMatcherOutdatedClause(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseDataRetention,
			Text: "Personal data is kept for the retention period of twelve months."},
	)
	rule := matcherRule("gdpr-retention", []string{model.ClauseDataRetention}, []string{"retention period", "deletion"})

	findings := m.Match(contract, []*model.Rule{rule})
	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Kind != model.KindOutdatedClause {
		t.Errorf("Expected outdated_clause, got %s", f.Kind)
	}
	if f.ClauseIndex != 0 {
		t.Errorf("Expected clause index 0, got %d", f.ClauseIndex)
	}
	if len(f.MissingTerms) != 1 || f.MissingTerms[0] != "deletion" {
		t.Errorf("Expected missing term 'deletion', got %v", f.MissingTerms)
	}
}

func TestMatcherCaseInsensitiveTerms(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseDataRetention,
			Text: "Data is held for the RETENTION PERIOD stated in Annex 2, then subject to Deletion."},
	)
	rule := matcherRule("gdpr-retention", []string{model.ClauseDataRetention}, []string{"Retention Period", "deletion"})

	findings := m.Match(contract, []*model.Rule{rule})
	if len(findings) != 0 {
		t.Errorf("Expected case-insensitive match to satisfy rule, got %d findings", len(findings))
	}
}

func TestMatcherBestCoverageWins(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseDataRetention,
			Text: "Data is kept for the retention period, then erased by deletion."},
		model.Clause{Index: 3, Type: model.ClauseDataRetention,
			Text: "Records may be kept as needed."},
	)
	rule := matcherRule("gdpr-retention", []string{model.ClauseDataRetention},
		[]string{"retention period", "deletion", "supervisory authority"})

	findings := m.Match(contract, []*model.Rule{rule})
	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	// Clause 0 covers two of three terms; clause 3 covers none
	if findings[0].ClauseIndex != 0 {
		t.Errorf("Expected clause with best coverage (0), got %d", findings[0].ClauseIndex)
	}
	if !reflect.DeepEqual(findings[0].MissingTerms, []string{"supervisory authority"}) {
		t.Errorf("Expected missing terms [supervisory authority], got %v", findings[0].MissingTerms)
	}
}

func TestMatcherLatestClauseBreaksTie(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 1, Type: model.ClauseDataRetention, Text: "Data handling follows company policy."},
		model.Clause{Index: 4, Type: model.ClauseDataRetention, Text: "Records are managed per internal standards."},
	)
	rule := matcherRule("gdpr-retention", []string{model.ClauseDataRetention}, []string{"retention period"})

	findings := m.Match(contract, []*model.Rule{rule})
	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	// Equal (zero) coverage: the later clause carries the obligation
	if findings[0].ClauseIndex != 4 {
		t.Errorf("Expected the later clause (4) on a coverage tie, got %d", findings[0].ClauseIndex)
	}
}

func TestMatcherMultipleClauseTypes(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseDataProtection,
			Text: "The processor notifies the controller of any breach within 72 hours."},
	)
	// Either clause type satisfies the presence requirement
	rule := matcherRule("gdpr-breach", []string{model.ClauseBreachNotification, model.ClauseDataProtection},
		[]string{"72 hours"})

	findings := m.Match(contract, []*model.Rule{rule})
	if len(findings) != 0 {
		t.Errorf("Expected alternate clause type to satisfy rule, got %d findings", len(findings))
	}
}

func TestMatcherMultipleRules(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseDataRetention,
			Text: "Data is kept for the retention period of one year, then deletion applies."},
	)
	satisfied := matcherRule("gdpr-retention", []string{model.ClauseDataRetention}, []string{"retention period", "deletion"})
	violated := matcherRule("gdpr-breach", []string{model.ClauseBreachNotification}, []string{"72 hours"})

	findings := m.Match(contract, []*model.Rule{satisfied, violated})
	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	if findings[0].RuleID != "gdpr-breach" {
		t.Errorf("Expected finding against gdpr-breach, got %s", findings[0].RuleID)
	}
}

func TestMatcherDeterministic(t *testing.T) {
	m := NewMatcher()
	contract := matcherContract(
		model.Clause{Index: 0, Type: model.ClauseDataRetention, Text: "Data handling follows policy."},
		model.Clause{Index: 1, Type: model.ClauseLiability, Text: "Liability is limited to fees paid."},
	)
	rules := []*model.Rule{
		matcherRule("gdpr-retention", []string{model.ClauseDataRetention}, []string{"retention period"}),
		matcherRule("gdpr-breach", []string{model.ClauseBreachNotification}, []string{"72 hours"}),
	}

	first := m.Match(contract, rules)
	second := m.Match(contract, rules)
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected repeated matching to produce identical findings")
	}
}
