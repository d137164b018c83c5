package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

type schedCall struct {
	contractID string
	trigger    string
}

type stubScheduler struct {
	mu    sync.Mutex
	calls []schedCall
}

func (s *stubScheduler) Schedule(contractID, trigger string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, schedCall{contractID: contractID, trigger: trigger})
	return true
}

func (s *stubScheduler) scheduled() []schedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schedCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *stubScheduler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

type fakeFeed struct {
	name      string
	pubs      []model.RulePublication
	err       error
	fetches   int
	lastSince int64
}

func (f *fakeFeed) Name() string { return f.name }

func (f *fakeFeed) Fetch(ctx context.Context, since int64) ([]model.RulePublication, int64, error) {
	f.fetches++
	f.lastSince = since
	if f.err != nil {
		return nil, since, f.err
	}
	next := since
	var out []model.RulePublication
	for _, p := range f.pubs {
		if p.Seq > since {
			out = append(out, p)
			if p.Seq > next {
				next = p.Seq
			}
		}
	}
	return out, next, nil
}

func newMonitorSetup(t *testing.T, sources ...FeedSource) (*Monitor, *Store, *Catalog, *stubScheduler) {
	t.Helper()
	store := newTestStore(t)
	catalog := NewCatalog()
	sched := &stubScheduler{}
	cfg := &config.RulesConfig{PollIntervalSeconds: 3600, PageSize: 100}
	return NewMonitor(cfg, store, catalog, sched, sources...), store, catalog, sched
}

func rulePub(seq int64, id string, version int, clauseTypes []string, from time.Time) model.RulePublication {
	return model.RulePublication{
		Seq:         seq,
		PublishedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Rule: model.Rule{
			ID:            id,
			Version:       version,
			Jurisdiction:  "GDPR",
			ClauseTypes:   clauseTypes,
			RequiredTerms: []string{"retention period"},
			EffectiveFrom: from,
			Weight:        8,
			Description:   "Retention requirements",
		},
	}
}

func TestMonitorPublishActivatesDueRule(t *testing.T) {
	m, store, catalog, sched := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveContract(ctx, testContract("c-eu", "tenant1", model.ContractActive, []string{"GDPR"}))
	store.SaveContract(ctx, testContract("c-us", "tenant1", model.ContractActive, []string{"CCPA"}))

	pub := rulePub(1, "gdpr-retention", 1, []string{"data-retention"}, time.Now().Add(-24*time.Hour))
	rule, err := m.Publish(ctx, pub.Rule)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule.Status != model.RuleActive {
		t.Errorf("Expected active status, got %s", rule.Status)
	}

	stored, _ := store.GetRule(ctx, "gdpr-retention", 1)
	if stored == nil || stored.Status != model.RuleActive {
		t.Fatalf("Expected rule stored active, got %+v", stored)
	}
	if catalog.Size() != 1 {
		t.Errorf("Expected catalog size 1, got %d", catalog.Size())
	}

	calls := sched.scheduled()
	if len(calls) != 1 {
		t.Fatalf("Expected exactly one contract scheduled, got %d", len(calls))
	}
	if calls[0].contractID != "c-eu" {
		t.Errorf("Expected the GDPR contract scheduled, got %s", calls[0].contractID)
	}
	if calls[0].trigger != "rule gdpr-retention v1" {
		t.Errorf("Unexpected trigger: %s", calls[0].trigger)
	}
}

func TestMonitorPublishAssignsNextVersion(t *testing.T) {
	m, store, _, _ := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveRule(ctx, testRule("gdpr-retention", 1, model.RuleSuperseded))
	store.SaveRule(ctx, testRule("gdpr-retention", 2, model.RuleActive))

	pub := rulePub(0, "gdpr-retention", 0, []string{"data-retention"}, time.Now().Add(-time.Hour))
	rule, err := m.Publish(ctx, pub.Rule)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule.Version != 3 {
		t.Errorf("Expected version 3 assigned, got %d", rule.Version)
	}
}

func TestMonitorFutureRuleStaysPending(t *testing.T) {
	m, store, catalog, sched := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveContract(ctx, testContract("c-eu", "tenant1", model.ContractActive, []string{"GDPR"}))

	pub := rulePub(1, "gdpr-future", 1, []string{"data-retention"}, time.Now().Add(48*time.Hour))
	rule, err := m.Publish(ctx, pub.Rule)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule.Status != model.RulePending {
		t.Errorf("Expected pending status, got %s", rule.Status)
	}
	if catalog.Size() != 0 {
		t.Errorf("Expected empty catalog, got %d", catalog.Size())
	}
	if len(sched.scheduled()) != 0 {
		t.Error("Expected no contracts scheduled for a future rule")
	}
}

func TestMonitorTickPromotesDueRule(t *testing.T) {
	m, store, catalog, sched := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveContract(ctx, testContract("c-eu", "tenant1", model.ContractActive, []string{"GDPR"}))

	due := testRule("gdpr-retention", 1, model.RulePending)
	due.EffectiveFrom = time.Now().Add(-time.Minute)
	store.SaveRule(ctx, due)

	notDue := testRule("gdpr-later", 1, model.RulePending)
	notDue.EffectiveFrom = time.Now().Add(48 * time.Hour)
	store.SaveRule(ctx, notDue)

	m.Tick(ctx)

	promoted, _ := store.GetRule(ctx, "gdpr-retention", 1)
	if promoted.Status != model.RuleActive {
		t.Errorf("Expected due rule promoted, got %s", promoted.Status)
	}
	parked, _ := store.GetRule(ctx, "gdpr-later", 1)
	if parked.Status != model.RulePending {
		t.Errorf("Expected future rule to stay pending, got %s", parked.Status)
	}
	if catalog.Size() != 1 {
		t.Errorf("Expected catalog size 1, got %d", catalog.Size())
	}
	if len(sched.scheduled()) != 1 {
		t.Errorf("Expected one contract scheduled, got %d", len(sched.scheduled()))
	}
}

func TestMonitorConflictParksPending(t *testing.T) {
	m, store, catalog, sched := newMonitorSetup(t)
	ctx := context.Background()

	first := rulePub(1, "gdpr-retention", 1, []string{"data-retention"}, time.Now().Add(-24*time.Hour))
	if _, err := m.Publish(ctx, first.Rule); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sched.reset()

	// Different lineage, same jurisdiction and clause types, overlapping window
	clash := rulePub(2, "gdpr-storage", 1, []string{"data-retention"}, time.Now().Add(-time.Hour))
	rule, err := m.Publish(ctx, clash.Rule)
	if err == nil {
		t.Fatal("Expected a conflict error")
	}
	if !model.IsRuleConflict(err) {
		t.Fatalf("Expected rule conflict, got %v", err)
	}
	if rule == nil || rule.Status != model.RulePending {
		t.Fatalf("Expected conflicted rule parked pending, got %+v", rule)
	}

	stored, _ := store.GetRule(ctx, "gdpr-storage", 1)
	if stored.Status != model.RulePending {
		t.Errorf("Expected stored status pending, got %s", stored.Status)
	}
	if catalog.Size() != 1 {
		t.Errorf("Expected catalog unchanged, got %d", catalog.Size())
	}
	if len(sched.scheduled()) != 0 {
		t.Error("Expected no scheduling for a conflicted rule")
	}
}

func TestMonitorTickPromotesAfterConflictClears(t *testing.T) {
	m, store, _, _ := newMonitorSetup(t)
	ctx := context.Background()

	first := rulePub(1, "gdpr-retention", 1, []string{"data-retention"}, time.Now().Add(-24*time.Hour))
	m.Publish(ctx, first.Rule)
	clash := rulePub(2, "gdpr-storage", 1, []string{"data-retention"}, time.Now().Add(-time.Hour))
	m.Publish(ctx, clash.Rule)

	// While the clash stands, ticks change nothing
	m.Tick(ctx)
	parked, _ := store.GetRule(ctx, "gdpr-storage", 1)
	if parked.Status != model.RulePending {
		t.Fatalf("Expected rule to stay pending while conflicted, got %s", parked.Status)
	}

	// Retiring the first lineage clears the clash
	if err := store.SetRuleStatus(ctx, "gdpr-retention", 1, model.RuleSuperseded); err != nil {
		t.Fatalf("Failed to retire rule: %v", err)
	}
	if err := m.Reload(ctx); err != nil {
		t.Fatalf("Failed to reload catalog: %v", err)
	}

	m.Tick(ctx)
	promoted, _ := store.GetRule(ctx, "gdpr-storage", 1)
	if promoted.Status != model.RuleActive {
		t.Errorf("Expected rule promoted once the conflict cleared, got %s", promoted.Status)
	}
}

func TestMonitorReplayIsNoOp(t *testing.T) {
	m, store, _, sched := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveContract(ctx, testContract("c-eu", "tenant1", model.ContractActive, []string{"GDPR"}))

	pub := rulePub(1, "gdpr-retention", 1, []string{"data-retention"}, time.Now().Add(-24*time.Hour))
	if err := m.Apply(ctx, []model.RulePublication{pub}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := m.Apply(ctx, []model.RulePublication{pub}); err != nil {
		t.Fatalf("Unexpected error on replay: %v", err)
	}

	versions, _ := store.RuleVersions(ctx, "gdpr-retention")
	if len(versions) != 1 {
		t.Errorf("Expected a replay to store nothing new, got %d versions", len(versions))
	}
	if len(sched.scheduled()) != 1 {
		t.Errorf("Expected exactly one schedule call across replays, got %d", len(sched.scheduled()))
	}
}

func TestMonitorNewVersionSupersedesOld(t *testing.T) {
	m, store, catalog, sched := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveContract(ctx, testContract("c-eu", "tenant1", model.ContractActive, []string{"GDPR"}))

	v1 := rulePub(1, "gdpr-retention", 1, []string{"data-retention"}, time.Now().Add(-48*time.Hour))
	m.Publish(ctx, v1.Rule)
	sched.reset()

	v2 := rulePub(2, "gdpr-retention", 2, []string{"data-retention"}, time.Now().Add(-time.Hour))
	rule, err := m.Publish(ctx, v2.Rule)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rule.Status != model.RuleActive {
		t.Errorf("Expected v2 active, got %s", rule.Status)
	}

	old, _ := store.GetRule(ctx, "gdpr-retention", 1)
	if old.Status != model.RuleSuperseded {
		t.Errorf("Expected v1 superseded, got %s", old.Status)
	}
	if catalog.Size() != 1 {
		t.Errorf("Expected one rule in catalog, got %d", catalog.Size())
	}
	if len(sched.scheduled()) != 1 {
		t.Errorf("Expected re-evaluation on the new version, got %d calls", len(sched.scheduled()))
	}
}

func TestMonitorLateOldVersionStoredSuperseded(t *testing.T) {
	m, store, _, sched := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveContract(ctx, testContract("c-eu", "tenant1", model.ContractActive, []string{"GDPR"}))

	v2 := rulePub(5, "gdpr-retention", 2, []string{"data-retention"}, time.Now().Add(-time.Hour))
	m.Publish(ctx, v2.Rule)
	sched.reset()

	// An old version arriving after a newer one never activates
	v1 := rulePub(6, "gdpr-retention", 1, []string{"data-retention"}, time.Now().Add(-48*time.Hour))
	if err := m.Apply(ctx, []model.RulePublication{v1}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	late, _ := store.GetRule(ctx, "gdpr-retention", 1)
	if late.Status != model.RuleSuperseded {
		t.Errorf("Expected late version stored superseded, got %s", late.Status)
	}
	active, _ := store.GetRule(ctx, "gdpr-retention", 2)
	if active.Status != model.RuleActive {
		t.Errorf("Expected v2 to stay active, got %s", active.Status)
	}
	if len(sched.scheduled()) != 0 {
		t.Error("Expected no scheduling for a late old version")
	}
}

func TestMonitorPollAdvancesCursor(t *testing.T) {
	feed := &fakeFeed{
		name: "test-feed",
		pubs: []model.RulePublication{
			rulePub(1, "gdpr-retention", 1, []string{"data-retention"}, time.Now().Add(-24*time.Hour)),
			rulePub(2, "gdpr-breach", 1, []string{"breach-notification"}, time.Now().Add(-24*time.Hour)),
		},
	}
	m, store, _, _ := newMonitorSetup(t, feed)
	ctx := context.Background()

	m.Poll(ctx)

	cursor, _ := store.FeedCursor(ctx, "test-feed")
	if cursor != 2 {
		t.Errorf("Expected cursor 2, got %d", cursor)
	}
	if r, _ := store.GetRule(ctx, "gdpr-breach", 1); r == nil {
		t.Error("Expected fed rule to be stored")
	}

	m.Poll(ctx)
	if feed.lastSince != 2 {
		t.Errorf("Expected second poll to resume from 2, got %d", feed.lastSince)
	}
	if cursor, _ = store.FeedCursor(ctx, "test-feed"); cursor != 2 {
		t.Errorf("Expected cursor to stay at 2, got %d", cursor)
	}
}

func TestMonitorPollKeepsCursorOnFetchError(t *testing.T) {
	feed := &fakeFeed{name: "test-feed", err: fmt.Errorf("feed unreachable")}
	m, store, _, _ := newMonitorSetup(t, feed)
	ctx := context.Background()

	m.Poll(ctx)

	if feed.fetches != 1 {
		t.Errorf("Expected one fetch, got %d", feed.fetches)
	}
	cursor, _ := store.FeedCursor(ctx, "test-feed")
	if cursor != 0 {
		t.Errorf("Expected cursor unchanged on fetch error, got %d", cursor)
	}
}

func TestMonitorPollKeepsCursorOnBadPublication(t *testing.T) {
	bad := rulePub(1, "gdpr-retention", 1, []string{"data-retention"}, time.Now())
	bad.Rule.Jurisdiction = ""
	feed := &fakeFeed{name: "test-feed", pubs: []model.RulePublication{bad}}
	m, store, _, _ := newMonitorSetup(t, feed)
	ctx := context.Background()

	m.Poll(ctx)

	// The page failed to apply, so the next poll replays it
	cursor, _ := store.FeedCursor(ctx, "test-feed")
	if cursor != 0 {
		t.Errorf("Expected cursor unchanged on apply error, got %d", cursor)
	}
}

func TestMonitorReloadBuildsCatalog(t *testing.T) {
	m, store, catalog, _ := newMonitorSetup(t)
	ctx := context.Background()

	store.SaveRule(ctx, testRule("gdpr-retention", 1, model.RuleActive))
	breach := testRule("gdpr-breach", 1, model.RuleActive)
	breach.ClauseTypes = []string{"breach-notification"}
	store.SaveRule(ctx, breach)
	store.SaveRule(ctx, testRule("gdpr-parked", 1, model.RulePending))

	if err := m.Reload(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if catalog.Size() != 2 {
		t.Errorf("Expected 2 active rules in catalog, got %d", catalog.Size())
	}
}
