package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/pkg/logger"
)

const (
	EventEvaluationCompleted   = "evaluation.completed"
	EventIngestFailed          = "ingest.failed"
	EventFindingRecommendation = "finding.recommendation"

	signatureHeader = "X-Compliance-Signature"
)

// Notifier posts pipeline events to an external webhook. Payloads are signed
// with HMAC-SHA256 so receivers can verify origin. Delivery runs off the
// caller's path and gives up after the configured retries; notifications are
// best-effort and never hold up an evaluation. Stop cancels pending retries
// and waits for in-flight deliveries to return.
type Notifier struct {
	cfg    *config.NotifierConfig
	client *http.Client
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotifier(cfg *config.NotifierConfig) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stop aborts retry backoffs and blocks until delivery goroutines finish
func (n *Notifier) Stop() {
	n.cancel()
	n.wg.Wait()
}

// WebhookEvent is the envelope every notification is wrapped in
type WebhookEvent struct {
	Event           string         `json:"event"`
	Timestamp       time.Time      `json:"timestamp"`
	Tenant          string         `json:"tenant"`
	ContractID      string         `json:"contract_id"`
	ContractVersion int            `json:"contract_version"`
	Trigger         string         `json:"trigger,omitempty"`
	Created         int            `json:"created,omitempty"`
	Resolved        int            `json:"resolved,omitempty"`
	Summary         map[string]int `json:"summary,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	FindingID       string         `json:"finding_id,omitempty"`
	RecState        string         `json:"rec_state,omitempty"`
}

// EvaluationCompleted reports one finished evaluation run
func (n *Notifier) EvaluationCompleted(contract *model.Contract, trigger string, outcome *EvalOutcome) {
	if n.cfg.WebhookURL == "" {
		return
	}
	event := &WebhookEvent{
		Event:           EventEvaluationCompleted,
		Timestamp:       time.Now(),
		Tenant:          contract.Tenant,
		ContractID:      contract.ID,
		ContractVersion: contract.Version,
		Trigger:         trigger,
		Created:         len(outcome.Created),
		Resolved:        outcome.Resolved,
		Summary:         outcome.Counts,
	}
	n.wg.Add(1)
	go n.deliver(event)
}

// IngestFailed reports a document that could not be parsed
func (n *Notifier) IngestFailed(contract *model.Contract, reason string) {
	if n.cfg.WebhookURL == "" {
		return
	}
	event := &WebhookEvent{
		Event:           EventIngestFailed,
		Timestamp:       time.Now(),
		Tenant:          contract.Tenant,
		ContractID:      contract.ID,
		ContractVersion: contract.Version,
		Reason:          reason,
	}
	n.wg.Add(1)
	go n.deliver(event)
}

// FindingRecommendation reports a recommendation turning ready or degraded
func (n *Notifier) FindingRecommendation(finding *model.Finding, state string) {
	if n.cfg.WebhookURL == "" {
		return
	}
	event := &WebhookEvent{
		Event:           EventFindingRecommendation,
		Timestamp:       time.Now(),
		Tenant:          finding.Tenant,
		ContractID:      finding.ContractID,
		ContractVersion: finding.ContractVersion,
		FindingID:       finding.ID,
		RecState:        state,
	}
	n.wg.Add(1)
	go n.deliver(event)
}

func (n *Notifier) deliver(event *WebhookEvent) {
	defer n.wg.Done()

	body, err := json.Marshal(event)
	if err != nil {
		logger.Error(context.Background(), "Failed to encode webhook event", "event", event.Event, "error", err)
		return
	}
	signature := n.Sign(body)

	for attempt := 1; attempt <= n.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-n.ctx.Done():
				return
			case <-time.After(time.Second << (attempt - 2)):
			}
		}
		err = n.post(body, signature)
		if err == nil {
			return
		}
		if n.ctx.Err() != nil {
			return
		}
		logger.Warn(context.Background(), "Webhook delivery failed",
			"event", event.Event, "attempt", attempt, "error", err)
	}
	logger.Error(context.Background(), "Webhook delivery abandoned",
		"event", event.Event, "contract_id", event.ContractID, "error", err)
}

func (n *Notifier) post(body []byte, signature string) error {
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signature)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature for a payload
func (n *Notifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(n.cfg.Secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a payload against its signature header value.
// Comparison is constant time.
func (n *Notifier) VerifySignature(payload []byte, signature string) bool {
	return hmac.Equal([]byte(n.Sign(payload)), []byte(signature))
}
