package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/pkg/logger"
)

// EvalScheduler queues a contract for re-evaluation. Schedule never blocks;
// it reports whether the contract was accepted.
type EvalScheduler interface {
	Schedule(contractID, trigger string) bool
}

// Monitor consumes regulatory publications and drives each rule through
// pending, active and superseded. Activating a rule rebuilds the catalog
// snapshot and queues every active contract in the rule's jurisdiction for
// re-evaluation, once per publication. The monitor never touches contract
// content; re-checks happen through the scheduler.
type Monitor struct {
	cfg       *config.RulesConfig
	store     *Store
	catalog   *Catalog
	scheduler EvalScheduler
	sources   []FeedSource

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(cfg *config.RulesConfig, store *Store, catalog *Catalog, scheduler EvalScheduler, sources ...FeedSource) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:       cfg,
		store:     store,
		catalog:   catalog,
		scheduler: scheduler,
		sources:   sources,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Reload rebuilds the catalog snapshot from the stored active rules. Called
// once at startup before any evaluation runs.
func (m *Monitor) Reload(ctx context.Context) error {
	rules, err := m.store.ActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active rules: %w", err)
	}
	m.catalog.Load(rules)
	logger.Info(ctx, "Rule catalog loaded", "rules", len(rules))
	return nil
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Poll(m.ctx)
			m.Tick(m.ctx)
		}
	}
}

// Poll fetches pending publications from every feed source and applies them.
// The cursor only advances after a page applies cleanly, so a failed page is
// replayed on the next poll; replays are no-ops because rule versions are
// applied at most once.
func (m *Monitor) Poll(ctx context.Context) {
	for _, src := range m.sources {
		cursor, err := m.store.FeedCursor(ctx, src.Name())
		if err != nil {
			logger.Error(ctx, "Failed to read feed cursor", "source", src.Name(), "error", err)
			continue
		}

		pubs, next, err := src.Fetch(ctx, cursor)
		if err != nil {
			logger.Error(ctx, "Feed fetch failed", "source", src.Name(), "error", err)
			continue
		}
		if len(pubs) == 0 && next == cursor {
			continue
		}

		if err := m.Apply(ctx, pubs); err != nil {
			logger.Error(ctx, "Failed to apply feed page", "source", src.Name(), "error", err)
			continue
		}
		if err := m.store.SaveFeedCursor(ctx, src.Name(), next); err != nil {
			logger.Error(ctx, "Failed to save feed cursor", "source", src.Name(), "error", err)
		}
	}
}

// Apply processes publications in order. Catalog conflicts park the rule
// pending and are logged rather than aborting the batch; storage errors abort
// so the page can be replayed.
func (m *Monitor) Apply(ctx context.Context, pubs []model.RulePublication) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pub := range pubs {
		_, err := m.applyOne(ctx, pub)
		if err == nil {
			continue
		}
		if model.IsRuleConflict(err) {
			logger.Error(ctx, "Rule publication conflicts with active catalog, parked pending",
				"rule_id", pub.Rule.ID, "version", pub.Rule.Version, "error", err)
			continue
		}
		return err
	}
	return nil
}

// Publish applies one manually submitted rule. A zero version is assigned the
// next version in the lineage. The stored rule is returned together with a
// conflict error when activation was blocked.
func (m *Monitor) Publish(ctx context.Context, rule model.Rule) (*model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rule.Version == 0 {
		versions, err := m.store.RuleVersions(ctx, rule.ID)
		if err != nil {
			return nil, err
		}
		max := 0
		for _, v := range versions {
			if v.Version > max {
				max = v.Version
			}
		}
		rule.Version = max + 1
	}
	if rule.PublishedAt.IsZero() {
		rule.PublishedAt = time.Now()
	}

	return m.applyOne(ctx, model.RulePublication{PublishedAt: rule.PublishedAt, Rule: rule})
}

// Tick promotes pending rules whose effective date has arrived. Conflicted
// rules stay pending until the clash clears.
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.store.PendingRules(ctx)
	if err != nil {
		logger.Error(ctx, "Failed to load pending rules", "error", err)
		return
	}

	now := time.Now()
	for _, r := range pending {
		if r.EffectiveFrom.After(now) {
			continue
		}

		newerActive, err := m.newerActiveExists(ctx, r)
		if err != nil {
			logger.Error(ctx, "Failed to inspect rule lineage", "rule_id", r.ID, "error", err)
			continue
		}
		if newerActive {
			if err := m.store.SetRuleStatus(ctx, r.ID, r.Version, model.RuleSuperseded); err != nil {
				logger.Error(ctx, "Failed to supersede stale pending rule", "rule_id", r.ID, "version", r.Version, "error", err)
			}
			continue
		}

		if err := m.promote(ctx, r); err != nil {
			if model.IsRuleConflict(err) {
				logger.Warn(ctx, "Pending rule still conflicted", "rule_id", r.ID, "version", r.Version, "error", err)
				continue
			}
			logger.Error(ctx, "Failed to promote pending rule", "rule_id", r.ID, "version", r.Version, "error", err)
		}
	}
}

// applyOne stores one publication and activates it when due. Callers hold the
// monitor mutex. Rule versions are immutable: a version already stored means
// a replay, which changes nothing.
func (m *Monitor) applyOne(ctx context.Context, pub model.RulePublication) (*model.Rule, error) {
	rule := pub.Rule
	if err := validateRule(&rule); err != nil {
		return nil, err
	}
	rule.Seq = pub.Seq
	if rule.PublishedAt.IsZero() {
		rule.PublishedAt = pub.PublishedAt
	}

	existing, err := m.store.GetRule(ctx, rule.ID, rule.Version)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	newerActive, err := m.newerActiveExists(ctx, &rule)
	if err != nil {
		return nil, err
	}

	switch {
	case newerActive:
		rule.Status = model.RuleSuperseded
	default:
		rule.Status = model.RulePending
	}
	if err := m.store.SaveRule(ctx, &rule); err != nil {
		return nil, err
	}

	if rule.Status == model.RuleSuperseded {
		logger.Info(ctx, "Stored late rule version as superseded", "rule_id", rule.ID, "version", rule.Version)
		return &rule, nil
	}
	if rule.EffectiveFrom.After(time.Now()) {
		logger.Info(ctx, "Rule stored pending future effective date",
			"rule_id", rule.ID, "version", rule.Version, "effective_from", rule.EffectiveFrom)
		return &rule, nil
	}

	if err := m.promote(ctx, &rule); err != nil {
		return &rule, err
	}
	return &rule, nil
}

// promote activates one stored rule: older active versions of the lineage are
// superseded, the catalog snapshot is rebuilt, and affected contracts are
// queued for re-evaluation.
func (m *Monitor) promote(ctx context.Context, rule *model.Rule) error {
	if conflict := m.catalog.ConflictsWith(rule); conflict != nil {
		return conflict
	}

	versions, err := m.store.RuleVersions(ctx, rule.ID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.Version != rule.Version && v.Status == model.RuleActive {
			if err := m.store.SetRuleStatus(ctx, v.ID, v.Version, model.RuleSuperseded); err != nil {
				return err
			}
		}
	}
	if err := m.store.SetRuleStatus(ctx, rule.ID, rule.Version, model.RuleActive); err != nil {
		return err
	}
	rule.Status = model.RuleActive

	if err := m.Reload(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Rule activated", "rule_id", rule.ID, "version", rule.Version,
		"jurisdiction", rule.Jurisdiction)
	m.fanOut(ctx, rule)
	return nil
}

// fanOut queues every active contract in the rule's jurisdiction, once each
func (m *Monitor) fanOut(ctx context.Context, rule *model.Rule) {
	if m.scheduler == nil {
		return
	}
	contracts, err := m.store.ActiveContractsInJurisdiction(ctx, rule.Jurisdiction)
	if err != nil {
		logger.Error(ctx, "Failed to list affected contracts", "rule_id", rule.ID, "error", err)
		return
	}

	trigger := fmt.Sprintf("rule %s v%d", rule.ID, rule.Version)
	seen := make(map[string]bool, len(contracts))
	queued := 0
	for _, c := range contracts {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if m.scheduler.Schedule(c.ID, trigger) {
			queued++
		}
	}
	logger.Info(ctx, "Rule activation fanned out", "rule_id", rule.ID, "version", rule.Version,
		"jurisdiction", rule.Jurisdiction, "contracts", queued)
}

func (m *Monitor) newerActiveExists(ctx context.Context, rule *model.Rule) (bool, error) {
	versions, err := m.store.RuleVersions(ctx, rule.ID)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.Status == model.RuleActive && v.Version > rule.Version {
			return true, nil
		}
	}
	return false, nil
}

func validateRule(r *model.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Version < 1 {
		return fmt.Errorf("rule version must be positive")
	}
	if r.Jurisdiction == "" {
		return fmt.Errorf("rule jurisdiction is required")
	}
	if len(r.ClauseTypes) == 0 {
		return fmt.Errorf("rule must name at least one clause type")
	}
	if r.EffectiveFrom.IsZero() {
		return fmt.Errorf("rule effective date is required")
	}
	if r.Weight < 0 {
		return fmt.Errorf("rule weight must not be negative")
	}
	return nil
}
