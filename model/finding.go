package model

import (
	"time"
)

// Finding records a compliance gap between one contract version and one rule
// version. The referenced versions are fixed at creation time: re-evaluating
// under a newer rule or contract version produces a new Finding instead of
// revalidating this one.
type Finding struct {
	ID              string          `json:"id"`
	Tenant          string          `json:"tenant"`
	ContractID      string          `json:"contract_id"`
	ContractVersion int             `json:"contract_version"`
	RuleID          string          `json:"rule_id"`
	RuleVersion     int             `json:"rule_version"`
	Kind            string          `json:"kind"`         // missing_clause, outdated_clause
	Status          string          `json:"status"`       // open, resolved, dismissed
	ClauseIndex     int             `json:"clause_index"` // -1 when no clause matched
	MissingTerms    []string        `json:"missing_terms,omitempty"`
	Score           float64         `json:"score"`
	Level           string          `json:"level"`
	RecState        string          `json:"rec_state"` // none, pending, ready, degraded
	Recommendation  *Recommendation `json:"recommendation,omitempty"`
	Attempts        int             `json:"attempts"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// Recommendation is a proposed amendment produced by the recommendation engine
type Recommendation struct {
	Text          string    `json:"text"`
	Confidence    float64   `json:"confidence"`
	ResidualLevel string    `json:"residual_level,omitempty"`
	Model         string    `json:"model,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Finding statuses
const (
	FindingOpen      = "open"
	FindingResolved  = "resolved"
	FindingDismissed = "dismissed"
)

// Finding kinds
const (
	KindMissingClause  = "missing_clause"
	KindOutdatedClause = "outdated_clause"
)

// Risk levels
const (
	LevelHigh   = "High"
	LevelMedium = "Medium"
	LevelLow    = "Low"
)

// Recommendation states
const (
	RecNone     = "none"
	RecPending  = "pending"
	RecReady    = "ready"
	RecDegraded = "degraded"
)

// Key identifies a finding by the exact rule and contract versions it was
// raised against
func (f *Finding) Key() FindingKey {
	return FindingKey{
		ContractID:      f.ContractID,
		ContractVersion: f.ContractVersion,
		RuleID:          f.RuleID,
		RuleVersion:     f.RuleVersion,
	}
}

// FindingKey is the identity of a finding across evaluation runs
type FindingKey struct {
	ContractID      string
	ContractVersion int
	RuleID          string
	RuleVersion     int
}
