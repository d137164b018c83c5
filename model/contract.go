package model

import (
	"time"
)

// Contract represents one version of an ingested contract document
type Contract struct {
	ID            string    `json:"id"`
	Tenant        string    `json:"tenant"`
	Name          string    `json:"name"`
	Filename      string    `json:"filename"`
	Jurisdictions []string  `json:"jurisdictions"`
	Version       int       `json:"version"`
	Status        string    `json:"status"`       // draft, active, archived
	IngestState   string    `json:"ingest_state"` // pending, extracting, ready, failed
	Clauses       []Clause  `json:"clauses,omitempty"`
	SourceKey     string    `json:"source_key,omitempty"`
	SourceURL     string    `json:"source_url,omitempty"`
	ExtractTaskID string    `json:"extract_task_id,omitempty"`
	ErrorMsg      string    `json:"error_msg,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clause is an ordered text unit of a contract version with a type tag
type Clause struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Heading   string `json:"heading,omitempty"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// Contract lifecycle statuses
const (
	ContractDraft    = "draft"
	ContractActive   = "active"
	ContractArchived = "archived"
)

// Ingestion states
const (
	IngestPending    = "pending"
	IngestExtracting = "extracting"
	IngestReady      = "ready"
	IngestFailed     = "failed"
)

// Clause type tags
const (
	ClauseDataRetention      = "data-retention"
	ClauseDataProtection     = "data-protection"
	ClauseBreachNotification = "breach-notification"
	ClauseConfidentiality    = "confidentiality"
	ClauseLiability          = "liability"
	ClauseIndemnification    = "indemnification"
	ClauseTermination        = "termination"
	ClausePayment            = "payment"
	ClauseIP                 = "intellectual-property"
	ClauseDispute            = "dispute-resolution"
	ClauseGoverningLaw       = "governing-law"
	ClauseWarranty           = "warranty"
	ClauseForceMajeure       = "force-majeure"
	ClauseGeneral            = "general"
)

// HasJurisdiction reports whether the contract is scoped to the given jurisdiction
func (c *Contract) HasJurisdiction(jurisdiction string) bool {
	for _, j := range c.Jurisdictions {
		if j == jurisdiction {
			return true
		}
	}
	return false
}

// ClausesOfType returns the contract's clauses carrying the given type tag,
// in document order
func (c *Contract) ClausesOfType(clauseType string) []Clause {
	var result []Clause
	for _, cl := range c.Clauses {
		if cl.Type == clauseType {
			result = append(result, cl)
		}
	}
	return result
}
