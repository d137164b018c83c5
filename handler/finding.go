package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/middleware"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/service"
)

type FindingHandler struct {
	store *service.Store
}

func NewFindingHandler(store *service.Store) *FindingHandler {
	return &FindingHandler{store: store}
}

// List returns the tenant's findings, filterable by status, level and contract
func (h *FindingHandler) List(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	filter := service.FindingFilter{
		Status:     c.Query("status"),
		Level:      c.Query("level"),
		ContractID: c.Query("contract_id"),
	}
	findings, err := h.store.ListFindings(c.Request.Context(), tenant, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list findings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"findings": findings, "count": len(findings)})
}

// loadTenantFinding resolves :id within the caller's tenant
func (h *FindingHandler) loadTenantFinding(c *gin.Context) *model.Finding {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	finding, err := h.store.GetFinding(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load finding"})
		return nil
	}
	if finding == nil || finding.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Finding not found"})
		return nil
	}
	return finding
}

// Get returns a single finding including any recommendation
func (h *FindingHandler) Get(c *gin.Context) {
	finding := h.loadTenantFinding(c)
	if finding == nil {
		return
	}
	c.JSON(http.StatusOK, finding)
}

// Resolve closes an open finding as addressed
func (h *FindingHandler) Resolve(c *gin.Context) {
	h.transition(c, model.FindingResolved)
}

// Dismiss closes an open finding as not applicable. A dismissed finding is
// never re-raised for the same rule and contract version.
func (h *FindingHandler) Dismiss(c *gin.Context) {
	h.transition(c, model.FindingDismissed)
}

func (h *FindingHandler) transition(c *gin.Context, status string) {
	finding := h.loadTenantFinding(c)
	if finding == nil {
		return
	}
	if finding.Status != model.FindingOpen {
		c.JSON(http.StatusConflict, gin.H{"error": "Only open findings can be " + status})
		return
	}

	ok, err := h.store.UpdateFindingStatus(c.Request.Context(), finding.ID, finding.Tenant, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update finding"})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "Finding is no longer open"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": finding.ID, "status": status})
}
