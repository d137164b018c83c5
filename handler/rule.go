package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/service"
)

type RuleHandler struct {
	store   *service.Store
	monitor *service.Monitor
	catalog *service.Catalog
}

func NewRuleHandler(store *service.Store, monitor *service.Monitor, catalog *service.Catalog) *RuleHandler {
	return &RuleHandler{store: store, monitor: monitor, catalog: catalog}
}

// List returns stored rules, filterable by jurisdiction and lifecycle status
func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.store.ListRules(c.Request.Context(), c.Query("jurisdiction"), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rules":           rules,
		"count":           len(rules),
		"catalog_size":    h.catalog.Size(),
		"catalog_rebuilt": h.catalog.BuiltAt().Format(time.RFC3339),
	})
}

// Get returns every version of one rule lineage, oldest first
func (h *RuleHandler) Get(c *gin.Context) {
	versions, err := h.store.RuleVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule"})
		return
	}
	if len(versions) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "versions": versions})
}

type publishRuleRequest struct {
	ID            string     `json:"id" binding:"required"`
	Version       int        `json:"version"`
	Jurisdiction  string     `json:"jurisdiction" binding:"required"`
	ClauseTypes   []string   `json:"clause_types" binding:"required"`
	RequiredTerms []string   `json:"required_terms"`
	EffectiveFrom time.Time  `json:"effective_from" binding:"required"`
	EffectiveTo   *time.Time `json:"effective_to"`
	Weight        float64    `json:"weight"`
	Description   string     `json:"description"`
	Source        string     `json:"source"`
}

// Publish submits a rule through the same lifecycle as feed publications.
// Without an explicit version the next version in the lineage is assigned.
func (h *RuleHandler) Publish(c *gin.Context) {
	var req publishRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule: " + err.Error()})
		return
	}

	rule, err := h.monitor.Publish(c.Request.Context(), model.Rule{
		ID:            req.ID,
		Version:       req.Version,
		Jurisdiction:  req.Jurisdiction,
		ClauseTypes:   req.ClauseTypes,
		RequiredTerms: req.RequiredTerms,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		Weight:        req.Weight,
		Description:   req.Description,
		Source:        req.Source,
	})
	if err != nil {
		if model.IsRuleConflict(err) {
			// The rule is stored pending; the operator has to clear the clash
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
				"rule":  rule,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}
