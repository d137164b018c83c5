package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/pkg/logger"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/service"
)

// CallbackHandler receives the asynchronous results of the external text
// extraction service. The endpoint is unauthenticated, so every callback is
// checksum-verified before anything is trusted.
type CallbackHandler struct {
	extract   *service.ExtractService
	store     *service.Store
	contracts *ContractHandler
}

func NewCallbackHandler(extract *service.ExtractService, store *service.Store, contracts *ContractHandler) *CallbackHandler {
	return &CallbackHandler{
		extract:   extract,
		store:     store,
		contracts: contracts,
	}
}

type CallbackRequest struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

type CallbackContent struct {
	TaskID     string `json:"task_id"`
	DataID     string `json:"data_id"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrorMsg   string `json:"err_msg"`
}

// HandleExtract processes one extraction callback. DataID carries the
// contract ID the task was created with.
func (h *CallbackHandler) HandleExtract(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var content CallbackContent
	if err := json.Unmarshal([]byte(req.Content), &content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content format"})
		return
	}

	if !h.extract.VerifyCallback(req.Checksum, req.Content, content.DataID) {
		logger.Warn(c.Request.Context(), "Extraction callback failed checksum verification",
			"task_id", content.TaskID, "data_id", content.DataID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Checksum verification failed"})
		return
	}

	contract, err := h.store.GetContract(c.Request.Context(), content.DataID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return
	}
	if contract == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return
	}

	switch content.State {
	case "done":
		if content.FullZipURL == "" {
			h.contracts.failIngest(c.Request.Context(), contract.ID, "Extraction finished without a result archive")
			break
		}
		markdown, err := h.extract.FetchMarkdown(c.Request.Context(), content.FullZipURL)
		if err != nil {
			h.contracts.failIngest(c.Request.Context(), contract.ID, "Failed to fetch extraction result: "+err.Error())
			break
		}
		h.contracts.FinishIngest(c.Request.Context(), contract.ID, markdown)
	case "failed":
		h.contracts.failIngest(c.Request.Context(), contract.ID, content.ErrorMsg)
	default:
		logger.Debug(c.Request.Context(), "Extraction progress callback",
			"task_id", content.TaskID, "contract_id", contract.ID, "state", content.State)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Callback received"})
}
