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

// Evaluator runs compliance checks over contracts on a fixed worker pool.
// Each run reads one catalog snapshot, matches and scores in memory, and
// persists the finding set in a single transaction; a failed or cancelled run
// writes nothing.
type Evaluator struct {
	cfg      *config.EvaluatorConfig
	store    *Store
	catalog  *Catalog
	matcher  *Matcher
	scorer   *Scorer
	rec      *Recommender
	notifier *Notifier

	jobs   chan evalJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type evalJob struct {
	contractID string
	trigger    string
}

func NewEvaluator(cfg *config.EvaluatorConfig, store *Store, catalog *Catalog, scorer *Scorer, rec *Recommender, notifier *Notifier) *Evaluator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Evaluator{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		matcher:  NewMatcher(),
		scorer:   scorer,
		rec:      rec,
		notifier: notifier,
		jobs:     make(chan evalJob, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Evaluator) Start() {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

func (e *Evaluator) Stop() {
	e.cancel()
	e.wg.Wait()
}

// Schedule queues a contract for evaluation without blocking the caller
func (e *Evaluator) Schedule(contractID, trigger string) bool {
	select {
	case e.jobs <- evalJob{contractID: contractID, trigger: trigger}:
		return true
	default:
		logger.Warn(e.ctx, "Evaluation queue full, dropping job",
			"contract_id", contractID, "trigger", trigger)
		return false
	}
}

func (e *Evaluator) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case job := <-e.jobs:
			ctx, cancel := context.WithTimeout(e.ctx, e.cfg.Timeout())
			if _, err := e.Evaluate(ctx, job.contractID, job.trigger); err != nil {
				logger.Error(ctx, "Evaluation failed",
					"contract_id", job.contractID, "trigger", job.trigger, "error", err)
			}
			cancel()
		}
	}
}

// Evaluate runs one compliance check over a contract. Scoring failures abort
// before anything is written, so a bad rule weight can never leave partial
// findings behind.
func (e *Evaluator) Evaluate(ctx context.Context, contractID, trigger string) (*EvalOutcome, error) {
	contract, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, fmt.Errorf("contract %s not found", contractID)
	}
	if contract.Status == model.ContractArchived {
		return nil, fmt.Errorf("contract %s is archived", contractID)
	}
	if contract.IngestState != model.IngestReady {
		return nil, fmt.Errorf("contract %s is not ready for evaluation (state %s)", contractID, contract.IngestState)
	}

	rules, err := e.catalog.RulesFor(contract.Jurisdictions, time.Now())
	if err != nil {
		return nil, err
	}

	findings := e.matcher.Match(contract, rules)

	ruleByKey := make(map[string]*model.Rule, len(rules))
	for _, r := range rules {
		ruleByKey[fmt.Sprintf("%s@%d", r.ID, r.Version)] = r
	}
	for _, f := range findings {
		rule := ruleByKey[fmt.Sprintf("%s@%d", f.RuleID, f.RuleVersion)]
		if err := e.scorer.Score(f, rule); err != nil {
			return nil, err
		}
		if e.rec != nil {
			f.RecState = model.RecPending
		} else {
			f.RecState = model.RecNone
		}
	}

	outcome, err := e.store.ReplaceFindings(ctx, contract, findings)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Contract evaluated",
		"contract_id", contract.ID, "version", contract.Version, "trigger", trigger,
		"rules", len(rules), "created", len(outcome.Created),
		"carried", outcome.Carried, "resolved", outcome.Resolved,
		"high", outcome.Counts[model.LevelHigh], "medium", outcome.Counts[model.LevelMedium],
		"low", outcome.Counts[model.LevelLow])

	if e.rec != nil {
		for _, f := range outcome.Created {
			e.rec.Enqueue(f.ID)
		}
	}
	if e.notifier != nil {
		e.notifier.EvaluationCompleted(contract, trigger, outcome)
	}
	return outcome, nil
}
