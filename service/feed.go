package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

// FeedSource delivers regulatory rule publications in sequence order. Fetch
// returns publications with seq greater than the cursor plus the new cursor
// position; replaying an old cursor must return the same publications again.
type FeedSource interface {
	Name() string
	Fetch(ctx context.Context, since int64) ([]model.RulePublication, int64, error)
}

// feedSchema guards the wire format before any publication is trusted.
// A feed answer that fails validation is rejected whole, keeping a corrupt
// page from half-applying.
var feedSchema = jsonschema.MustCompileString("feed.json", `{
	"type": "object",
	"required": ["publications"],
	"properties": {
		"publications": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["seq", "rule"],
				"properties": {
					"seq": {"type": "integer", "minimum": 1},
					"published_at": {"type": "string"},
					"rule": {
						"type": "object",
						"required": ["id", "version", "jurisdiction", "clause_types", "effective_from", "weight"],
						"properties": {
							"id": {"type": "string", "minLength": 1},
							"version": {"type": "integer", "minimum": 1},
							"jurisdiction": {"type": "string", "minLength": 1},
							"clause_types": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
							"required_terms": {"type": "array", "items": {"type": "string"}},
							"effective_from": {"type": "string"},
							"effective_to": {"type": ["string", "null"]},
							"weight": {"type": "number", "minimum": 0},
							"description": {"type": "string"},
							"source": {"type": "string"}
						}
					}
				}
			}
		},
		"next_since": {"type": "integer"}
	}
}`)

// HTTPFeedSource polls a paginated JSON feed of rule publications
type HTTPFeedSource struct {
	cfg    *config.RulesConfig
	client *http.Client
	name   string
}

func NewHTTPFeedSource(cfg *config.RulesConfig) *HTTPFeedSource {
	name := "feed"
	if u, err := url.Parse(cfg.FeedURL); err == nil && u.Host != "" {
		name = u.Host
	}
	return &HTTPFeedSource{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		name:   name,
	}
}

func (s *HTTPFeedSource) Name() string {
	return s.name
}

type feedEnvelope struct {
	Publications []feedPublication `json:"publications"`
	NextSince    int64             `json:"next_since"`
}

type feedPublication struct {
	Seq         int64     `json:"seq"`
	PublishedAt time.Time `json:"published_at"`
	Rule        feedRule  `json:"rule"`
}

type feedRule struct {
	ID            string     `json:"id"`
	Version       int        `json:"version"`
	Jurisdiction  string     `json:"jurisdiction"`
	ClauseTypes   []string   `json:"clause_types"`
	RequiredTerms []string   `json:"required_terms"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`
	Weight        float64    `json:"weight"`
	Description   string     `json:"description"`
	Source        string     `json:"source"`
}

func (s *HTTPFeedSource) Fetch(ctx context.Context, since int64) ([]model.RulePublication, int64, error) {
	u, err := url.Parse(s.cfg.FeedURL)
	if err != nil {
		return nil, since, fmt.Errorf("invalid feed url: %w", err)
	}
	q := u.Query()
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("limit", strconv.Itoa(s.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, since, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.FeedToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.FeedToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, since, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, since, fmt.Errorf("failed to read feed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, since, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, since, fmt.Errorf("feed response is not JSON: %w", err)
	}
	if err := feedSchema.Validate(raw); err != nil {
		return nil, since, fmt.Errorf("feed response failed validation: %w", err)
	}

	var envelope feedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, since, fmt.Errorf("failed to decode feed response: %w", err)
	}

	next := since
	pubs := make([]model.RulePublication, 0, len(envelope.Publications))
	for _, p := range envelope.Publications {
		if p.Seq > next {
			next = p.Seq
		}
		pubs = append(pubs, model.RulePublication{
			Seq:         p.Seq,
			PublishedAt: p.PublishedAt,
			Rule: model.Rule{
				ID:            p.Rule.ID,
				Version:       p.Rule.Version,
				Jurisdiction:  p.Rule.Jurisdiction,
				ClauseTypes:   p.Rule.ClauseTypes,
				RequiredTerms: p.Rule.RequiredTerms,
				EffectiveFrom: p.Rule.EffectiveFrom,
				EffectiveTo:   p.Rule.EffectiveTo,
				Weight:        p.Rule.Weight,
				Description:   p.Rule.Description,
				Source:        p.Rule.Source,
				Seq:           p.Seq,
				PublishedAt:   p.PublishedAt,
			},
		})
	}
	if envelope.NextSince > next {
		next = envelope.NextSince
	}
	return pubs, next, nil
}
