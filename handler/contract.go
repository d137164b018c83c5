package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/middleware"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/pkg/logger"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/service"
)

const maxUploadBytes = 20 << 20

type ContractHandler struct {
	store      *service.Store
	minio      *service.MinioService
	extract    *service.ExtractService
	normalizer *service.Normalizer
	evaluator  *service.Evaluator
	notifier   *service.Notifier
	extractCfg *config.ExtractConfig
}

func NewContractHandler(store *service.Store, minio *service.MinioService, extract *service.ExtractService,
	normalizer *service.Normalizer, evaluator *service.Evaluator, notifier *service.Notifier,
	extractCfg *config.ExtractConfig) *ContractHandler {
	return &ContractHandler{
		store:      store,
		minio:      minio,
		extract:    extract,
		normalizer: normalizer,
		evaluator:  evaluator,
		notifier:   notifier,
		extractCfg: extractCfg,
	}
}

// Upload ingests a new contract document. Text and markdown are normalized
// inline; PDF is stored and handed to the extraction service, with clauses
// arriving asynchronously.
func (h *ContractHandler) Upload(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File exceeds the maximum upload size"})
		return
	}

	jurisdictions := parseJurisdictions(c.PostForm("jurisdictions"))
	if len(jurisdictions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one jurisdiction is required"})
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name := c.PostForm("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	contract := &model.Contract{
		ID:            uuid.New().String(),
		Tenant:        tenant,
		Name:          name,
		Filename:      header.Filename,
		Jurisdictions: jurisdictions,
		Version:       1,
		Status:        model.ContractDraft,
	}

	switch ext {
	case ".txt", ".md", ".markdown":
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
			return
		}
		clauses, err := h.normalizer.Normalize(header.Filename, data)
		if err != nil {
			var parseErr *model.ParseError
			if errors.As(err, &parseErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse document: " + parseErr.Reason})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse document"})
			return
		}
		contract.Clauses = clauses
		contract.IngestState = model.IngestReady

	case ".pdf":
		if h.minio == nil || h.extract == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PDF ingestion is not configured"})
			return
		}
		objectName := fmt.Sprintf("%s/%s/v%d/%s", tenant, contract.ID, contract.Version, header.Filename)
		if err := h.minio.UploadFile(c.Request.Context(), objectName, file, header.Size, "application/pdf"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file: " + err.Error()})
			return
		}
		docURL, err := h.minio.GetPresignedURL(c.Request.Context(), objectName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL: " + err.Error()})
			return
		}
		contract.SourceKey = objectName
		contract.SourceURL = docURL
		contract.IngestState = model.IngestPending

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF, TXT and Markdown files are supported"})
		return
	}

	if err := h.store.SaveContract(c.Request.Context(), contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contract"})
		return
	}

	if contract.IngestState == model.IngestPending {
		go h.processExtractTask(contract.ID, contract.SourceURL)
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            contract.ID,
		"name":          contract.Name,
		"filename":      contract.Filename,
		"jurisdictions": contract.Jurisdictions,
		"version":       contract.Version,
		"status":        contract.Status,
		"ingest_state":  contract.IngestState,
		"clauses":       len(contract.Clauses),
	})
}

func parseJurisdictions(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		j := strings.TrimSpace(part)
		if j == "" || seen[j] {
			continue
		}
		seen[j] = true
		out = append(out, j)
	}
	return out
}

// processExtractTask drives one PDF through the external extraction service
func (h *ContractHandler) processExtractTask(contractID, docURL string) {
	ctx := context.Background()
	logger.Info(ctx, "Starting extraction task", "contract_id", contractID)

	if err := h.store.UpdateContractIngest(ctx, contractID, model.IngestExtracting, ""); err != nil {
		logger.Error(ctx, "Failed to update ingest state", "contract_id", contractID, "error", err)
		return
	}

	resp, err := h.extract.CreateTask(ctx, docURL, contractID)
	if err != nil {
		h.failIngest(ctx, contractID, "Failed to create extraction task: "+err.Error())
		return
	}
	taskID := resp.Data.TaskID
	logger.Info(ctx, "Extraction task created", "contract_id", contractID, "task_id", taskID)

	if contract, err := h.store.GetContract(ctx, contractID); err == nil && contract != nil {
		contract.ExtractTaskID = taskID
		if err := h.store.SaveContract(ctx, contract); err != nil {
			logger.Error(ctx, "Failed to record extraction task", "contract_id", contractID, "error", err)
		}
	}

	// With a callback configured the result arrives via the callback handler
	if h.extractCfg != nil && h.extractCfg.CallbackURL != "" {
		return
	}
	h.pollExtractTask(ctx, contractID, taskID)
}

// pollExtractTask polls for task completion when no callback is configured
func (h *ContractHandler) pollExtractTask(ctx context.Context, contractID, taskID string) {
	maxAttempts := 60
	for i := 0; i < maxAttempts; i++ {
		time.Sleep(5 * time.Second)

		status, err := h.extract.GetTaskStatus(ctx, taskID)
		if err != nil {
			logger.Warn(ctx, "Extraction poll failed", "contract_id", contractID, "attempt", i+1, "error", err)
			continue
		}

		switch status.Data.State {
		case "done":
			if status.Data.FullZipURL == "" {
				h.failIngest(ctx, contractID, "Extraction finished without a result archive")
				return
			}
			markdown, err := h.extract.FetchMarkdown(ctx, status.Data.FullZipURL)
			if err != nil {
				h.failIngest(ctx, contractID, "Failed to fetch extraction result: "+err.Error())
				return
			}
			h.FinishIngest(ctx, contractID, markdown)
			return
		case "failed":
			h.failIngest(ctx, contractID, status.Data.ErrorMsg)
			return
		}
	}
	h.failIngest(ctx, contractID, "Extraction timed out")
}

// FinishIngest normalizes extracted markdown into the contract's clause set
// and marks it ready. Active contracts are queued for re-evaluation so an
// amendment takes effect without a manual check.
func (h *ContractHandler) FinishIngest(ctx context.Context, contractID, markdown string) {
	contract, err := h.store.GetContract(ctx, contractID)
	if err != nil || contract == nil {
		logger.Error(ctx, "Failed to load contract after extraction", "contract_id", contractID, "error", err)
		return
	}

	clauses, err := h.normalizer.NormalizeText(markdown)
	if err != nil {
		h.failIngest(ctx, contractID, "Failed to parse extracted document: "+err.Error())
		return
	}

	contract.Clauses = clauses
	contract.IngestState = model.IngestReady
	contract.ErrorMsg = ""
	if err := h.store.SaveContract(ctx, contract); err != nil {
		logger.Error(ctx, "Failed to save extracted clauses", "contract_id", contractID, "error", err)
		return
	}
	logger.Info(ctx, "Contract ingested", "contract_id", contractID, "version", contract.Version, "clauses", len(clauses))

	if contract.Status == model.ContractActive && h.evaluator != nil {
		h.evaluator.Schedule(contract.ID, "ingestion")
	}
}

func (h *ContractHandler) failIngest(ctx context.Context, contractID, reason string) {
	logger.Error(ctx, "Contract ingestion failed", "contract_id", contractID, "reason", reason)
	if err := h.store.UpdateContractIngest(ctx, contractID, model.IngestFailed, reason); err != nil {
		logger.Error(ctx, "Failed to record ingestion failure", "contract_id", contractID, "error", err)
		return
	}
	if h.notifier != nil {
		if contract, err := h.store.GetContract(ctx, contractID); err == nil && contract != nil {
			h.notifier.IngestFailed(contract, reason)
		}
	}
}

// List returns the tenant's contracts without clause bodies
func (h *ContractHandler) List(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	status := c.Query("status")

	contracts, err := h.store.ListContracts(c.Request.Context(), tenant, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contracts"})
		return
	}

	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":            contract.ID,
			"name":          contract.Name,
			"filename":      contract.Filename,
			"jurisdictions": contract.Jurisdictions,
			"version":       contract.Version,
			"status":        contract.Status,
			"ingest_state":  contract.IngestState,
			"clauses":       len(contract.Clauses),
			"created_at":    contract.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":    contract.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// loadTenantContract resolves :id within the caller's tenant. A contract from
// another tenant reads as not found.
func (h *ContractHandler) loadTenantContract(c *gin.Context) *model.Contract {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	contract, err := h.store.GetContract(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return nil
	}
	if contract == nil || contract.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return nil
	}
	return contract
}

// Get returns a single contract including its clauses
func (h *ContractHandler) Get(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}
	c.JSON(http.StatusOK, contract)
}

// GetStatus returns the lifecycle and ingestion state of a contract
func (h *ContractHandler) GetStatus(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           contract.ID,
		"version":      contract.Version,
		"status":       contract.Status,
		"ingest_state": contract.IngestState,
		"error_msg":    contract.ErrorMsg,
	})
}

// GetClauses returns the normalized clause sequence of the current version
func (h *ContractHandler) GetClauses(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contract_id": contract.ID,
		"version":     contract.Version,
		"clauses":     contract.Clauses,
	})
}

// Activate moves a draft contract into compliance monitoring and runs the
// first evaluation
func (h *ContractHandler) Activate(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}
	if contract.Status != model.ContractDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "Only draft contracts can be activated"})
		return
	}
	if contract.IngestState != model.IngestReady {
		c.JSON(http.StatusConflict, gin.H{"error": "Contract is not ready for activation (ingest state: " + contract.IngestState + ")"})
		return
	}

	contract.Status = model.ContractActive
	if err := h.store.SaveContract(c.Request.Context(), contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update contract"})
		return
	}
	if h.evaluator != nil {
		h.evaluator.Schedule(contract.ID, "activation")
	}

	c.JSON(http.StatusOK, gin.H{"id": contract.ID, "status": contract.Status})
}

// Archive retires a contract from compliance monitoring
func (h *ContractHandler) Archive(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}
	if contract.Status == model.ContractArchived {
		c.JSON(http.StatusConflict, gin.H{"error": "Contract is already archived"})
		return
	}

	contract.Status = model.ContractArchived
	if err := h.store.SaveContract(c.Request.Context(), contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update contract"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": contract.ID, "status": contract.Status})
}

// Amend replaces the contract document, bumping the version and re-ingesting.
// Findings raised against earlier versions are resolved or re-raised by the
// next evaluation run.
func (h *ContractHandler) Amend(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}
	if contract.Status == model.ContractArchived {
		c.JSON(http.StatusConflict, gin.H{"error": "Archived contracts cannot be amended"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File exceeds the maximum upload size"})
		return
	}

	if name := c.PostForm("name"); name != "" {
		contract.Name = name
	}
	if jurisdictions := parseJurisdictions(c.PostForm("jurisdictions")); len(jurisdictions) > 0 {
		contract.Jurisdictions = jurisdictions
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".txt", ".md", ".markdown":
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
			return
		}
		clauses, err := h.normalizer.Normalize(header.Filename, data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse document: " + err.Error()})
			return
		}
		contract.Version++
		contract.Filename = header.Filename
		contract.Clauses = clauses
		contract.IngestState = model.IngestReady
		contract.ErrorMsg = ""

	case ".pdf":
		if h.minio == nil || h.extract == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PDF ingestion is not configured"})
			return
		}
		contract.Version++
		objectName := fmt.Sprintf("%s/%s/v%d/%s", contract.Tenant, contract.ID, contract.Version, header.Filename)
		if err := h.minio.UploadFile(c.Request.Context(), objectName, file, header.Size, "application/pdf"); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file: " + err.Error()})
			return
		}
		docURL, err := h.minio.GetPresignedURL(c.Request.Context(), objectName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL: " + err.Error()})
			return
		}
		contract.Filename = header.Filename
		contract.SourceKey = objectName
		contract.SourceURL = docURL
		contract.IngestState = model.IngestPending

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF, TXT and Markdown files are supported"})
		return
	}

	if err := h.store.SaveContract(c.Request.Context(), contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contract"})
		return
	}

	if contract.IngestState == model.IngestPending {
		go h.processExtractTask(contract.ID, contract.SourceURL)
	} else if contract.Status == model.ContractActive && h.evaluator != nil {
		h.evaluator.Schedule(contract.ID, "amendment")
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           contract.ID,
		"version":      contract.Version,
		"status":       contract.Status,
		"ingest_state": contract.IngestState,
		"clauses":      len(contract.Clauses),
	})
}

// Evaluate runs a compliance check synchronously and returns the outcome
func (h *ContractHandler) Evaluate(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}
	if contract.Status == model.ContractArchived {
		c.JSON(http.StatusConflict, gin.H{"error": "Archived contracts are not evaluated"})
		return
	}
	if contract.IngestState != model.IngestReady {
		c.JSON(http.StatusConflict, gin.H{"error": "Contract is not ready for evaluation (ingest state: " + contract.IngestState + ")"})
		return
	}

	outcome, err := h.evaluator.Evaluate(c.Request.Context(), contract.ID, "manual")
	if err != nil {
		if model.IsRuleConflict(err) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Evaluation failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract_id": contract.ID,
		"version":     contract.Version,
		"created":     len(outcome.Created),
		"carried":     outcome.Carried,
		"resolved":    outcome.Resolved,
		"summary":     outcome.Counts,
	})
}

// GetFindings lists findings raised against a contract
func (h *ContractHandler) GetFindings(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}

	filter := service.FindingFilter{
		ContractID: contract.ID,
		Status:     c.Query("status"),
		Level:      c.Query("level"),
	}
	findings, err := h.store.ListFindings(c.Request.Context(), contract.Tenant, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list findings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"findings": findings})
}

// Delete removes a contract, its findings and its stored document
func (h *ContractHandler) Delete(c *gin.Context) {
	contract := h.loadTenantContract(c)
	if contract == nil {
		return
	}

	if err := h.store.DeleteContract(c.Request.Context(), contract.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contract"})
		return
	}
	if h.minio != nil && contract.SourceKey != "" {
		if err := h.minio.DeleteFile(c.Request.Context(), contract.SourceKey); err != nil {
			logger.Warn(c.Request.Context(), "Failed to delete stored document",
				"contract_id", contract.ID, "object", contract.SourceKey, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}
