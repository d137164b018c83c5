package model

import (
	"time"
)

// Rule is a versioned compliance requirement scoped to one jurisdiction.
// A published rule version is immutable; newer versions of the same lineage
// supersede older ones, they never edit them in place.
type Rule struct {
	ID            string     `json:"id"`
	Version       int        `json:"version"`
	Jurisdiction  string     `json:"jurisdiction"`
	ClauseTypes   []string   `json:"clause_types"`
	RequiredTerms []string   `json:"required_terms,omitempty"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Weight        float64    `json:"weight"`
	Status        string     `json:"status"` // pending, active, superseded
	Description   string     `json:"description,omitempty"`
	Source        string     `json:"source,omitempty"`
	Seq           int64      `json:"seq,omitempty"`
	PublishedAt   time.Time  `json:"published_at,omitempty"`
}

// Rule lifecycle statuses
const (
	RulePending    = "pending"
	RuleActive     = "active"
	RuleSuperseded = "superseded"
)

// RulePublication is one entry of the append-only regulatory feed
type RulePublication struct {
	Seq         int64     `json:"seq"`
	PublishedAt time.Time `json:"published_at"`
	Rule        Rule      `json:"rule"`
}

// EffectiveAt reports whether the rule's effective window covers t.
// The window is [EffectiveFrom, EffectiveTo); a nil EffectiveTo is open-ended.
func (r *Rule) EffectiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// OverlapsWindow reports whether the effective windows of r and other intersect
func (r *Rule) OverlapsWindow(other *Rule) bool {
	if r.EffectiveTo != nil && !other.EffectiveFrom.Before(*r.EffectiveTo) {
		return false
	}
	if other.EffectiveTo != nil && !r.EffectiveFrom.Before(*other.EffectiveTo) {
		return false
	}
	return true
}

// SameClauseTypes reports whether both rules require exactly the same clause
// type set, independent of order
func (r *Rule) SameClauseTypes(other *Rule) bool {
	if len(r.ClauseTypes) != len(other.ClauseTypes) {
		return false
	}
	set := make(map[string]bool, len(r.ClauseTypes))
	for _, t := range r.ClauseTypes {
		set[t] = true
	}
	for _, t := range other.ClauseTypes {
		if !set[t] {
			return false
		}
	}
	return true
}
