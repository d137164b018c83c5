package service

import (
	"strings"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

// Matcher checks a contract's clauses against a rule selection and produces
// the gaps as findings. It is pure: identifiers, scores and timestamps are
// assigned by later stages, so matching the same contract version against the
// same rule versions always yields the same result.
type Matcher struct{}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match evaluates every rule against the contract. A rule is satisfied when at
// least one clause of a required type covers all the rule's required terms.
func (m *Matcher) Match(contract *model.Contract, rules []*model.Rule) []*model.Finding {
	var findings []*model.Finding
	for _, rule := range rules {
		if f := matchRule(contract, rule); f != nil {
			findings = append(findings, f)
		}
	}
	return findings
}

func matchRule(contract *model.Contract, rule *model.Rule) *model.Finding {
	var candidates []model.Clause
	for _, t := range rule.ClauseTypes {
		candidates = append(candidates, contract.ClausesOfType(t)...)
	}

	if len(candidates) == 0 {
		return &model.Finding{
			ContractID:      contract.ID,
			ContractVersion: contract.Version,
			RuleID:          rule.ID,
			RuleVersion:     rule.Version,
			Kind:            model.KindMissingClause,
			ClauseIndex:     -1,
		}
	}

	// Pick the clause with the best term coverage; on equal coverage the one
	// appearing later in the document wins, since the later statement of an
	// obligation controls.
	best := candidates[0]
	bestMissing := missingTerms(best, rule.RequiredTerms)
	for _, c := range candidates[1:] {
		missing := missingTerms(c, rule.RequiredTerms)
		if len(missing) < len(bestMissing) || (len(missing) == len(bestMissing) && c.Index > best.Index) {
			best = c
			bestMissing = missing
		}
	}

	if len(bestMissing) == 0 {
		return nil
	}
	return &model.Finding{
		ContractID:      contract.ID,
		ContractVersion: contract.Version,
		RuleID:          rule.ID,
		RuleVersion:     rule.Version,
		Kind:            model.KindOutdatedClause,
		ClauseIndex:     best.Index,
		MissingTerms:    bestMissing,
	}
}

// missingTerms returns the required terms the clause text does not mention,
// preserving the rule's term order
func missingTerms(clause model.Clause, required []string) []string {
	lower := strings.ToLower(clause.Text)
	var missing []string
	for _, term := range required {
		if !strings.Contains(lower, strings.ToLower(term)) {
			missing = append(missing, term)
		}
	}
	return missing
}
