package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
)

// Store persists contracts, rules, findings and feed cursors in SQLite.
// Finding writes for one evaluation run happen inside a single transaction
// so a cancelled or failed run leaves no partial state behind.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS contracts (
	id              TEXT PRIMARY KEY,
	tenant          TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	filename        TEXT NOT NULL DEFAULT '',
	jurisdictions   TEXT NOT NULL DEFAULT '[]',
	version         INTEGER NOT NULL DEFAULT 1,
	status          TEXT NOT NULL,
	ingest_state    TEXT NOT NULL,
	clauses         TEXT NOT NULL DEFAULT '[]',
	source_key      TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	extract_task_id TEXT NOT NULL DEFAULT '',
	error_msg       TEXT NOT NULL DEFAULT '',
	evaluated_at    TEXT,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contracts_tenant ON contracts(tenant);
CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);

CREATE TABLE IF NOT EXISTS rules (
	id             TEXT NOT NULL,
	version        INTEGER NOT NULL,
	jurisdiction   TEXT NOT NULL,
	clause_types   TEXT NOT NULL,
	required_terms TEXT NOT NULL DEFAULT '[]',
	effective_from TEXT NOT NULL,
	effective_to   TEXT,
	weight         REAL NOT NULL,
	status         TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	seq            INTEGER NOT NULL DEFAULT 0,
	published_at   TEXT,
	created_at     TEXT NOT NULL,
	PRIMARY KEY (id, version)
);
CREATE INDEX IF NOT EXISTS idx_rules_jurisdiction ON rules(jurisdiction);
CREATE INDEX IF NOT EXISTS idx_rules_status ON rules(status);

CREATE TABLE IF NOT EXISTS findings (
	id               TEXT PRIMARY KEY,
	tenant           TEXT NOT NULL,
	contract_id      TEXT NOT NULL,
	contract_version INTEGER NOT NULL,
	rule_id          TEXT NOT NULL,
	rule_version     INTEGER NOT NULL,
	kind             TEXT NOT NULL,
	status           TEXT NOT NULL,
	clause_index     INTEGER NOT NULL DEFAULT -1,
	missing_terms    TEXT NOT NULL DEFAULT '[]',
	score            REAL NOT NULL DEFAULT 0,
	level            TEXT NOT NULL DEFAULT '',
	rec_state        TEXT NOT NULL DEFAULT 'none',
	rec_text         TEXT NOT NULL DEFAULT '',
	rec_confidence   REAL NOT NULL DEFAULT 0,
	rec_residual     TEXT NOT NULL DEFAULT '',
	rec_model        TEXT NOT NULL DEFAULT '',
	rec_generated_at TEXT,
	attempts         INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	resolved_at      TEXT,
	UNIQUE (contract_id, contract_version, rule_id, rule_version)
);
CREATE INDEX IF NOT EXISTS idx_findings_tenant ON findings(tenant);
CREATE INDEX IF NOT EXISTS idx_findings_contract ON findings(contract_id);
CREATE INDEX IF NOT EXISTS idx_findings_status ON findings(status);

CREATE TABLE IF NOT EXISTS feed_cursors (
	source     TEXT PRIMARY KEY,
	last_seq   INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`

func NewStore(cfg *config.StoreConfig) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids lock
	// contention and keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	slog.Info("store opened", "path", cfg.Path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- contracts ---

// SaveContract inserts or updates a contract record
func (s *Store) SaveContract(ctx context.Context, c *model.Contract) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	jurisdictions, err := json.Marshal(c.Jurisdictions)
	if err != nil {
		return fmt.Errorf("failed to encode jurisdictions: %w", err)
	}
	clauses, err := json.Marshal(c.Clauses)
	if err != nil {
		return fmt.Errorf("failed to encode clauses: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, tenant, name, filename, jurisdictions, version, status,
			ingest_state, clauses, source_key, source_url, extract_task_id, error_msg,
			evaluated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			filename = excluded.filename,
			jurisdictions = excluded.jurisdictions,
			version = excluded.version,
			status = excluded.status,
			ingest_state = excluded.ingest_state,
			clauses = excluded.clauses,
			source_key = excluded.source_key,
			source_url = excluded.source_url,
			extract_task_id = excluded.extract_task_id,
			error_msg = excluded.error_msg,
			evaluated_at = excluded.evaluated_at,
			updated_at = excluded.updated_at`,
		c.ID, c.Tenant, c.Name, c.Filename, string(jurisdictions), c.Version, c.Status,
		c.IngestState, string(clauses), c.SourceKey, c.SourceURL, c.ExtractTaskID, c.ErrorMsg,
		nullableTime(c.EvaluatedAt), c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

const contractColumns = `id, tenant, name, filename, jurisdictions, version, status,
	ingest_state, clauses, source_key, source_url, extract_task_id, error_msg,
	evaluated_at, created_at, updated_at`

// GetContract returns the contract with the given id, or nil when absent
func (s *Store) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanContract(rows)
}

// ListContracts returns the tenant's contracts, optionally filtered by status,
// newest first
func (s *Store) ListContracts(ctx context.Context, tenant, status string) ([]*model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE tenant = ?`
	args := []any{tenant}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var result []*model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ActiveContractsInJurisdiction returns all active contracts scoped to the
// given jurisdiction, across tenants. Used by the update monitor fan-out.
func (s *Store) ActiveContractsInJurisdiction(ctx context.Context, jurisdiction string) ([]*model.Contract, error) {
	// Jurisdictions are stored as a JSON string array, so each entry
	// appears quoted in the column text.
	pattern := `%"` + jurisdiction + `"%`
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE status = ? AND jurisdictions LIKE ? ORDER BY created_at`,
		model.ContractActive, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query active contracts: %w", err)
	}
	defer rows.Close()

	var result []*model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		if c.HasJurisdiction(jurisdiction) {
			result = append(result, c)
		}
	}
	return result, rows.Err()
}

func (s *Store) DeleteContract(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE contract_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete contract findings: %w", err)
	}
	return tx.Commit()
}

// UpdateContractIngest updates the ingestion state and error message
func (s *Store) UpdateContractIngest(ctx context.Context, id, state, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET ingest_state = ?, error_msg = ?, updated_at = ? WHERE id = ?`,
		state, errMsg, time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update ingest state: %w", err)
	}
	return nil
}

// --- rules ---

// SaveRule inserts one published rule version. Content is immutable after
// insert; only the lifecycle status changes via SetRuleStatus.
func (s *Store) SaveRule(ctx context.Context, r *model.Rule) error {
	clauseTypes, err := json.Marshal(r.ClauseTypes)
	if err != nil {
		return fmt.Errorf("failed to encode clause types: %w", err)
	}
	terms, err := json.Marshal(r.RequiredTerms)
	if err != nil {
		return fmt.Errorf("failed to encode required terms: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, version, jurisdiction, clause_types, required_terms,
			effective_from, effective_to, weight, status, description, source, seq,
			published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Version, r.Jurisdiction, string(clauseTypes), string(terms),
		r.EffectiveFrom.Format(time.RFC3339Nano), nullableTimePtr(r.EffectiveTo),
		r.Weight, r.Status, r.Description, r.Source, r.Seq,
		nullableTime(r.PublishedAt), time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

const ruleColumns = `id, version, jurisdiction, clause_types, required_terms,
	effective_from, effective_to, weight, status, description, source, seq, published_at`

// GetRule returns one rule version, or nil when absent
func (s *Store) GetRule(ctx context.Context, id string, version int) (*model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRule(rows)
}

// ListRules returns rules filtered by jurisdiction and status, ordered by
// lineage and version
func (s *Store) ListRules(ctx context.Context, jurisdiction, status string) ([]*model.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE 1=1`
	var args []any
	if jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, jurisdiction)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id, version`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var result []*model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ActiveRules returns every active rule version, the input of a catalog swap
func (s *Store) ActiveRules(ctx context.Context) ([]*model.Rule, error) {
	return s.ListRules(ctx, "", model.RuleActive)
}

// PendingRules returns rules waiting for their effective date or for a
// conflict to clear
func (s *Store) PendingRules(ctx context.Context) ([]*model.Rule, error) {
	return s.ListRules(ctx, "", model.RulePending)
}

// RuleVersions returns all versions of one rule lineage, oldest first
func (s *Store) RuleVersions(ctx context.Context, id string) ([]*model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ? ORDER BY version`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule versions: %w", err)
	}
	defer rows.Close()

	var result []*model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) SetRuleStatus(ctx context.Context, id string, version int, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rules SET status = ? WHERE id = ? AND version = ?`, status, id, version)
	if err != nil {
		return fmt.Errorf("failed to set rule status: %w", err)
	}
	return nil
}

// --- findings ---

// EvalOutcome summarizes one persisted evaluation run
type EvalOutcome struct {
	Created  []*model.Finding
	Carried  int
	Resolved int
	Counts   map[string]int
}

// ReplaceFindings persists the finding set computed by one evaluation run,
// all-or-nothing. Open findings that are not part of the new set (prior
// contract versions, superseded rule versions, satisfied gaps) are resolved;
// findings whose exact rule+contract version pair already exists are left
// untouched, so dismissals stick and re-runs are idempotent.
func (s *Store) ReplaceFindings(ctx context.Context, contract *model.Contract, computed []*model.Finding) (*EvalOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	nowStr := now.Format(time.RFC3339Nano)

	rows, err := tx.QueryContext(ctx,
		`SELECT id, contract_version, rule_id, rule_version, status FROM findings WHERE contract_id = ?`,
		contract.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing findings: %w", err)
	}

	type existing struct {
		id     string
		status string
	}
	byKey := make(map[model.FindingKey]existing)
	for rows.Next() {
		var e existing
		var key model.FindingKey
		key.ContractID = contract.ID
		if err := rows.Scan(&e.id, &key.ContractVersion, &key.RuleID, &key.RuleVersion, &e.status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		byKey[key] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	outcome := &EvalOutcome{Counts: make(map[string]int)}
	seen := make(map[model.FindingKey]bool, len(computed))

	for _, f := range computed {
		key := f.Key()
		if seen[key] {
			// Duplicate key within one evaluation run; the first occurrence wins.
			continue
		}
		seen[key] = true

		if ex, ok := byKey[key]; ok {
			// Same rule version against the same contract version: keep the
			// original record, whatever its status. Dismissals and manual
			// resolutions are never overridden by a re-run.
			if ex.status == model.FindingOpen {
				outcome.Carried++
			}
			continue
		}

		f.ID = uuid.New().String()
		f.Tenant = contract.Tenant
		f.Status = model.FindingOpen
		f.CreatedAt = now
		f.UpdatedAt = now

		terms, err := json.Marshal(f.MissingTerms)
		if err != nil {
			return nil, fmt.Errorf("failed to encode missing terms: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings (id, tenant, contract_id, contract_version, rule_id,
				rule_version, kind, status, clause_index, missing_terms, score, level,
				rec_state, attempts, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Tenant, f.ContractID, f.ContractVersion, f.RuleID,
			f.RuleVersion, f.Kind, f.Status, f.ClauseIndex, string(terms), f.Score, f.Level,
			f.RecState, f.Attempts, nowStr, nowStr)
		if err != nil {
			return nil, fmt.Errorf("failed to insert finding: %w", err)
		}
		outcome.Created = append(outcome.Created, f)
	}

	// Resolve open findings the new set no longer raises
	for key, ex := range byKey {
		if ex.status != model.FindingOpen || seen[key] {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE findings SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ?`,
			model.FindingResolved, nowStr, nowStr, ex.id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve stale finding: %w", err)
		}
		outcome.Resolved++
	}

	// Stamp the contract and count what is open now
	_, err = tx.ExecContext(ctx,
		`UPDATE contracts SET evaluated_at = ?, updated_at = ? WHERE id = ?`,
		nowStr, nowStr, contract.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp contract: %w", err)
	}

	countRows, err := tx.QueryContext(ctx,
		`SELECT level, COUNT(*) FROM findings WHERE contract_id = ? AND status = ? GROUP BY level`,
		contract.ID, model.FindingOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to count open findings: %w", err)
	}
	for countRows.Next() {
		var level string
		var n int
		if err := countRows.Scan(&level, &n); err != nil {
			countRows.Close()
			return nil, err
		}
		outcome.Counts[level] = n
	}
	countRows.Close()
	if err := countRows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit findings: %w", err)
	}

	contract.EvaluatedAt = now
	return outcome, nil
}

const findingColumns = `id, tenant, contract_id, contract_version, rule_id, rule_version,
	kind, status, clause_index, missing_terms, score, level, rec_state, rec_text,
	rec_confidence, rec_residual, rec_model, rec_generated_at, attempts,
	created_at, updated_at, resolved_at`

// GetFinding returns the finding with the given id, or nil when absent
func (s *Store) GetFinding(ctx context.Context, id string) (*model.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query finding: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanFinding(rows)
}

// FindingFilter narrows finding listings
type FindingFilter struct {
	Status     string
	Level      string
	ContractID string
}

// ListFindings returns the tenant's findings, newest first
func (s *Store) ListFindings(ctx context.Context, tenant string, filter FindingFilter) ([]*model.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE tenant = ?`
	args := []any{tenant}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Level != "" {
		query += ` AND level = ?`
		args = append(args, filter.Level)
	}
	if filter.ContractID != "" {
		query += ` AND contract_id = ?`
		args = append(args, filter.ContractID)
	}
	query += ` ORDER BY created_at DESC, rule_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var result []*model.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// UpdateFindingStatus transitions an open finding to resolved or dismissed.
// Returns false when the finding does not exist for the tenant or is not open.
func (s *Store) UpdateFindingStatus(ctx context.Context, id, tenant, status string) (bool, error) {
	nowStr := time.Now().Format(time.RFC3339Nano)
	var resolvedAt any
	if status == model.FindingResolved || status == model.FindingDismissed {
		resolvedAt = nowStr
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE findings SET status = ?, resolved_at = ?, updated_at = ?
		 WHERE id = ? AND tenant = ? AND status = ?`,
		status, resolvedAt, nowStr, id, tenant, model.FindingOpen)
	if err != nil {
		return false, fmt.Errorf("failed to update finding status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetFindingRecommendation stores the generated recommendation and marks the
// finding's recommendation state
func (s *Store) SetFindingRecommendation(ctx context.Context, id string, rec *model.Recommendation, state string, attempts int) error {
	nowStr := time.Now().Format(time.RFC3339Nano)
	if rec == nil {
		_, err := s.db.ExecContext(ctx,
			`UPDATE findings SET rec_state = ?, attempts = ?, updated_at = ? WHERE id = ?`,
			state, attempts, nowStr, id)
		if err != nil {
			return fmt.Errorf("failed to update recommendation state: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE findings SET rec_state = ?, rec_text = ?, rec_confidence = ?, rec_residual = ?,
			rec_model = ?, rec_generated_at = ?, attempts = ?, updated_at = ?
		 WHERE id = ?`,
		state, rec.Text, rec.Confidence, rec.ResidualLevel,
		rec.Model, rec.GeneratedAt.Format(time.RFC3339Nano), attempts, nowStr, id)
	if err != nil {
		return fmt.Errorf("failed to store recommendation: %w", err)
	}
	return nil
}

// --- feed cursors ---

// FeedCursor returns the last applied feed sequence for a source
func (s *Store) FeedCursor(ctx context.Context, source string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seq FROM feed_cursors WHERE source = ?`, source).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read feed cursor: %w", err)
	}
	return seq, nil
}

func (s *Store) SaveFeedCursor(ctx context.Context, source string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_cursors (source, last_seq, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET last_seq = excluded.last_seq, updated_at = excluded.updated_at`,
		source, seq, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save feed cursor: %w", err)
	}
	return nil
}

// --- scanning helpers ---

func scanContract(rows *sql.Rows) (*model.Contract, error) {
	var c model.Contract
	var jurisdictions, clauses, createdAt, updatedAt string
	var evaluatedAt sql.NullString

	err := rows.Scan(&c.ID, &c.Tenant, &c.Name, &c.Filename, &jurisdictions, &c.Version,
		&c.Status, &c.IngestState, &clauses, &c.SourceKey, &c.SourceURL, &c.ExtractTaskID,
		&c.ErrorMsg, &evaluatedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}

	if err := json.Unmarshal([]byte(jurisdictions), &c.Jurisdictions); err != nil {
		return nil, fmt.Errorf("failed to decode jurisdictions: %w", err)
	}
	if err := json.Unmarshal([]byte(clauses), &c.Clauses); err != nil {
		return nil, fmt.Errorf("failed to decode clauses: %w", err)
	}
	c.EvaluatedAt = parseNullTime(evaluatedAt)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func scanRule(rows *sql.Rows) (*model.Rule, error) {
	var r model.Rule
	var clauseTypes, terms, effectiveFrom string
	var effectiveTo, publishedAt sql.NullString

	err := rows.Scan(&r.ID, &r.Version, &r.Jurisdiction, &clauseTypes, &terms,
		&effectiveFrom, &effectiveTo, &r.Weight, &r.Status, &r.Description,
		&r.Source, &r.Seq, &publishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if err := json.Unmarshal([]byte(clauseTypes), &r.ClauseTypes); err != nil {
		return nil, fmt.Errorf("failed to decode clause types: %w", err)
	}
	if err := json.Unmarshal([]byte(terms), &r.RequiredTerms); err != nil {
		return nil, fmt.Errorf("failed to decode required terms: %w", err)
	}
	r.EffectiveFrom = parseTime(effectiveFrom)
	if effectiveTo.Valid {
		t := parseTime(effectiveTo.String)
		r.EffectiveTo = &t
	}
	r.PublishedAt = parseNullTime(publishedAt)
	return &r, nil
}

func scanFinding(rows *sql.Rows) (*model.Finding, error) {
	var f model.Finding
	var terms, createdAt, updatedAt string
	var recText, recResidual, recModel string
	var recConfidence float64
	var recGeneratedAt, resolvedAt sql.NullString

	err := rows.Scan(&f.ID, &f.Tenant, &f.ContractID, &f.ContractVersion, &f.RuleID,
		&f.RuleVersion, &f.Kind, &f.Status, &f.ClauseIndex, &terms, &f.Score, &f.Level,
		&f.RecState, &recText, &recConfidence, &recResidual, &recModel, &recGeneratedAt,
		&f.Attempts, &createdAt, &updatedAt, &resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan finding: %w", err)
	}

	if err := json.Unmarshal([]byte(terms), &f.MissingTerms); err != nil {
		return nil, fmt.Errorf("failed to decode missing terms: %w", err)
	}
	if recText != "" {
		f.Recommendation = &model.Recommendation{
			Text:          recText,
			Confidence:    recConfidence,
			ResidualLevel: recResidual,
			Model:         recModel,
			GeneratedAt:   parseNullTime(recGeneratedAt),
		}
	}
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		f.ResolvedAt = &t
	}
	return &f, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return parseTime(ns.String)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
