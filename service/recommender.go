package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/pkg/logger"
)

// Recommender generates remediation suggestions for findings on its own
// queue, decoupled from evaluation: a slow or failing model never delays
// finding creation. Calls are rate limited, retried with backoff, and after
// the attempt budget the finding is marked degraded and left without a
// suggestion.
type Recommender struct {
	cfg      *config.LLMConfig
	store    *Store
	llm      LLMClient
	notifier *Notifier
	limiter  *rate.Limiter
	jobs     chan recJob
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type recJob struct {
	findingID string
	attempts  int
}

func NewRecommender(cfg *config.LLMConfig, store *Store, llm LLMClient, notifier *Notifier) *Recommender {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recommender{
		cfg:      cfg,
		store:    store,
		llm:      llm,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.Burst),
		jobs:     make(chan recJob, 128),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Recommender) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Recommender) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Enqueue queues a finding for recommendation generation without blocking.
// When the queue is full the finding is marked degraded instead of waiting.
func (r *Recommender) Enqueue(findingID string) bool {
	select {
	case r.jobs <- recJob{findingID: findingID}:
		return true
	default:
		logger.Warn(r.ctx, "Recommendation queue full, degrading finding", "finding_id", findingID)
		if err := r.store.SetFindingRecommendation(r.ctx, findingID, nil, model.RecDegraded, 0); err != nil {
			logger.Error(r.ctx, "Failed to degrade finding", "finding_id", findingID, "error", err)
		}
		return false
	}
}

func (r *Recommender) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.jobs:
			r.process(job)
		}
	}
}

func (r *Recommender) process(job recJob) {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return
	}

	finding, err := r.store.GetFinding(r.ctx, job.findingID)
	if err != nil {
		logger.Error(r.ctx, "Failed to load finding for recommendation", "finding_id", job.findingID, "error", err)
		return
	}
	if finding == nil || finding.Status != model.FindingOpen {
		// Resolved or dismissed while queued; nothing to suggest
		return
	}

	rec, err := r.generate(r.ctx, finding)
	attempts := job.attempts + 1
	if err != nil {
		var timeout *model.RecommendationTimeout
		if errors.As(err, &timeout) {
			logger.Warn(r.ctx, "Recommendation timed out", "finding_id", job.findingID,
				"attempt", attempts, "elapsed", timeout.Elapsed.String())
		} else {
			logger.Warn(r.ctx, "Recommendation attempt failed", "finding_id", job.findingID,
				"attempt", attempts, "error", err)
		}

		if attempts >= r.cfg.MaxAttempts {
			logger.Warn(r.ctx, "Recommendation attempts exhausted, degrading finding", "finding_id", job.findingID)
			if err := r.store.SetFindingRecommendation(r.ctx, job.findingID, nil, model.RecDegraded, attempts); err != nil {
				logger.Error(r.ctx, "Failed to degrade finding", "finding_id", job.findingID, "error", err)
				return
			}
			r.notifyState(finding, model.RecDegraded)
			return
		}

		r.scheduleRetry(job.findingID, attempts)
		return
	}

	if err := r.store.SetFindingRecommendation(r.ctx, job.findingID, rec, model.RecReady, attempts); err != nil {
		logger.Error(r.ctx, "Failed to store recommendation", "finding_id", job.findingID, "error", err)
		return
	}
	r.notifyState(finding, model.RecReady)
}

func (r *Recommender) notifyState(finding *model.Finding, state string) {
	if r.notifier != nil {
		r.notifier.FindingRecommendation(finding, state)
	}
}

func (r *Recommender) scheduleRetry(findingID string, attempts int) {
	delay := r.cfg.Backoff() * (1 << (attempts - 1))
	delay += time.Duration(rand.Int63n(int64(delay/2) + 1))

	time.AfterFunc(delay, func() {
		select {
		case <-r.ctx.Done():
		case r.jobs <- recJob{findingID: findingID, attempts: attempts}:
		default:
			if err := r.store.SetFindingRecommendation(r.ctx, findingID, nil, model.RecDegraded, attempts); err != nil {
				logger.Error(r.ctx, "Failed to degrade finding", "finding_id", findingID, "error", err)
			}
		}
	})
}

func (r *Recommender) generate(ctx context.Context, finding *model.Finding) (*model.Recommendation, error) {
	contract, err := r.store.GetContract(ctx, finding.ContractID)
	if err != nil {
		return nil, err
	}
	rule, err := r.store.GetRule(ctx, finding.RuleID, finding.RuleVersion)
	if err != nil {
		return nil, err
	}
	if contract == nil || rule == nil {
		return nil, fmt.Errorf("finding %s references missing contract or rule", finding.ID)
	}

	system, user := buildPrompt(contract, rule, finding)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
	defer cancel()

	start := time.Now()
	result, err := r.llm.Complete(callCtx, system, user)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, &model.RecommendationTimeout{Elapsed: time.Since(start), Err: err}
		}
		return nil, err
	}

	payload, err := parseRecommendation(result.Content)
	if err != nil {
		return nil, err
	}

	return &model.Recommendation{
		Text:          strings.TrimSpace(payload.Recommendation),
		Confidence:    clampConfidence(payload.Confidence),
		ResidualLevel: normalizeResidual(payload.ResidualRisk),
		Model:         result.Model,
		GeneratedAt:   time.Now(),
	}, nil
}

const recSystemPrompt = `You are a contract compliance assistant. Answer with a single JSON object and nothing else, using exactly these keys: "recommendation" (suggested contract language closing the gap), "confidence" (number between 0 and 1) and "residual_risk" (High, Medium or Low after the fix is applied).`

func buildPrompt(contract *model.Contract, rule *model.Rule, finding *model.Finding) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Contract %q (version %d) was checked against rule %s version %d (%s, jurisdiction %s).\n",
		contract.Name, finding.ContractVersion, rule.ID, rule.Version, rule.Description, rule.Jurisdiction)

	switch finding.Kind {
	case model.KindMissingClause:
		fmt.Fprintf(&b, "The contract has no clause of type %s.\n", strings.Join(rule.ClauseTypes, " or "))
		if len(rule.RequiredTerms) > 0 {
			fmt.Fprintf(&b, "The clause must address: %s.\n", strings.Join(rule.RequiredTerms, ", "))
		}
	case model.KindOutdatedClause:
		fmt.Fprintf(&b, "The closest clause does not mention: %s.\n", strings.Join(finding.MissingTerms, ", "))
		if finding.ClauseIndex >= 0 && finding.ClauseIndex < len(contract.Clauses) {
			clause := contract.Clauses[finding.ClauseIndex]
			text := clause.Text
			if len(text) > 1200 {
				text = text[:1200]
			}
			fmt.Fprintf(&b, "Current clause text:\n%s\n", text)
		}
	}
	b.WriteString("Suggest replacement or additional contract language that closes this gap.")
	return recSystemPrompt, b.String()
}

type recPayload struct {
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	ResidualRisk   string  `json:"residual_risk"`
}

// parseRecommendation decodes the model answer. Models sometimes wrap the
// JSON in prose or a code fence, so a failed strict parse falls back to the
// outermost brace pair.
func parseRecommendation(content string) (*recPayload, error) {
	var p recPayload
	if err := json.Unmarshal([]byte(content), &p); err == nil && p.Recommendation != "" {
		return &p, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &p); err == nil && p.Recommendation != "" {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("model answer is not valid recommendation JSON")
}

func clampConfidence(v float64) float64 {
	if v > 1 && v <= 100 {
		// Some models answer in percent
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeResidual maps the model's residual risk wording onto the fixed
// levels. Model output never claims High residual risk on its own; anything
// that reads as High is capped at Medium for a human to confirm.
func normalizeResidual(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lower, "high"):
		return model.LevelMedium
	case strings.Contains(lower, "medium"), strings.Contains(lower, "moderate"):
		return model.LevelMedium
	case strings.Contains(lower, "low"):
		return model.LevelLow
	}
	if v, err := strconv.ParseFloat(lower, 64); err == nil {
		if v >= 40 {
			return model.LevelMedium
		}
		return model.LevelLow
	}
	return model.LevelMedium
}
