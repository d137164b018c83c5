package service

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

// Catalog holds the active rule set behind an atomic pointer. Evaluation runs
// read one immutable snapshot for their whole lifetime; publications build a
// fresh snapshot and swap it in, so readers never see a half-updated catalog.
type Catalog struct {
	snapshot atomic.Pointer[catalogSnapshot]
}

type catalogSnapshot struct {
	byJurisdiction map[string][]*model.Rule
	total          int
	builtAt        time.Time
}

func NewCatalog() *Catalog {
	c := &Catalog{}
	c.snapshot.Store(buildSnapshot(nil))
	return c
}

// Load replaces the catalog content with the given active rules
func (c *Catalog) Load(rules []*model.Rule) {
	c.snapshot.Store(buildSnapshot(rules))
}

func buildSnapshot(rules []*model.Rule) *catalogSnapshot {
	snap := &catalogSnapshot{
		byJurisdiction: make(map[string][]*model.Rule),
		builtAt:        time.Now(),
	}
	// One version per lineage: when a stale snapshot rebuild races a
	// supersede, the highest version wins.
	latest := make(map[string]*model.Rule, len(rules))
	for _, r := range rules {
		if r.Status != model.RuleActive {
			continue
		}
		if cur, ok := latest[r.ID]; ok && cur.Version >= r.Version {
			continue
		}
		latest[r.ID] = r
	}
	for _, r := range latest {
		snap.byJurisdiction[r.Jurisdiction] = append(snap.byJurisdiction[r.Jurisdiction], r)
		snap.total++
	}
	for _, list := range snap.byJurisdiction {
		sort.Slice(list, func(i, j int) bool {
			if list[i].ID != list[j].ID {
				return list[i].ID < list[j].ID
			}
			return list[i].Version < list[j].Version
		})
	}
	return snap
}

// RulesFor selects the rules applicable to a contract: every active rule in
// one of the contract's jurisdictions whose effective window covers the
// evaluation time. Two active lineages covering the same jurisdiction and
// clause types at once are a catalog conflict and abort selection.
func (c *Catalog) RulesFor(jurisdictions []string, at time.Time) ([]*model.Rule, error) {
	snap := c.snapshot.Load()

	var selected []*model.Rule
	for _, j := range jurisdictions {
		inWindow := make([]*model.Rule, 0, len(snap.byJurisdiction[j]))
		for _, r := range snap.byJurisdiction[j] {
			if r.EffectiveAt(at) {
				inWindow = append(inWindow, r)
			}
		}
		for i, a := range inWindow {
			for _, b := range inWindow[i+1:] {
				if a.SameClauseTypes(b) {
					return nil, &model.RuleConflictError{
						Jurisdiction: j,
						RuleA:        a.ID, VersionA: a.Version,
						RuleB: b.ID, VersionB: b.Version,
					}
				}
			}
		}
		selected = append(selected, inWindow...)
	}

	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Jurisdiction != selected[j].Jurisdiction {
			return selected[i].Jurisdiction < selected[j].Jurisdiction
		}
		return selected[i].ID < selected[j].ID
	})
	return selected, nil
}

// ConflictsWith reports whether activating the candidate would clash with an
// already active rule of a different lineage. Used before a publication is
// allowed to go active.
func (c *Catalog) ConflictsWith(candidate *model.Rule) *model.RuleConflictError {
	snap := c.snapshot.Load()
	for _, r := range snap.byJurisdiction[candidate.Jurisdiction] {
		if r.ID == candidate.ID {
			continue
		}
		if r.SameClauseTypes(candidate) && r.OverlapsWindow(candidate) {
			return &model.RuleConflictError{
				Jurisdiction: candidate.Jurisdiction,
				RuleA:        r.ID, VersionA: r.Version,
				RuleB: candidate.ID, VersionB: candidate.Version,
			}
		}
	}
	return nil
}

// Size returns the number of active rules in the current snapshot
func (c *Catalog) Size() int {
	return c.snapshot.Load().total
}

// BuiltAt returns when the current snapshot was assembled
func (c *Catalog) BuiltAt() time.Time {
	return c.snapshot.Load().builtAt
}
