package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vitalscope/vitalscope-business/internal/entitlement"
)

// EntitlementHandler serves tier and quota decisions for the signed-in user.
// Quota denials answer 200 with allowed=false; only transport and auth
// problems surface as error statuses.
type EntitlementHandler struct {
	engine *entitlement.Engine
}

// NewEntitlementHandler constructs an EntitlementHandler.
func NewEntitlementHandler(engine *entitlement.Engine) *EntitlementHandler {
	return &EntitlementHandler{engine: engine}
}

// TierInfo returns the user's plan and remaining quotas.
func (h *EntitlementHandler) TierInfo(c *gin.Context) {
	info, errInfo := h.engine.Info(c.Request.Context(), getUserID(c))
	if errInfo != nil {
		h.fail(c, "tier info", errInfo)
		return
	}
	c.JSON(http.StatusOK, info)
}

// CheckReport answers whether the user may generate a report.
func (h *EntitlementHandler) CheckReport(c *gin.Context) {
	decision, errCheck := h.engine.CheckReport(c.Request.Context(), getUserID(c))
	if errCheck != nil {
		h.fail(c, "check report", errCheck)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// CheckChat answers whether the user may chat against the given report.
func (h *EntitlementHandler) CheckChat(c *gin.Context) {
	reportID := c.Param("reportID")
	if reportID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "report id is required"})
		return
	}
	decision, errCheck := h.engine.CheckChat(c.Request.Context(), getUserID(c), reportID)
	if errCheck != nil {
		h.fail(c, "check chat", errCheck)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// CheckSnapshot answers whether the user may request a daily snapshot.
func (h *EntitlementHandler) CheckSnapshot(c *gin.Context) {
	decision, errCheck := h.engine.CheckSnapshot(c.Request.Context(), getUserID(c))
	if errCheck != nil {
		h.fail(c, "check snapshot", errCheck)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// DataRange returns the history window the user's tier may query.
func (h *EntitlementHandler) DataRange(c *gin.Context) {
	days, errDays := h.engine.MaxDataDays(c.Request.Context(), getUserID(c))
	if errDays != nil {
		h.fail(c, "data range", errDays)
		return
	}
	c.JSON(http.StatusOK, gin.H{"max_data_days": days})
}

// resolveModelRequest is the body for model resolution.
type resolveModelRequest struct {
	Model string `json:"model"`
}

// ResolveModel validates a model choice, substituting the tier default when
// the requested model is out of plan.
func (h *EntitlementHandler) ResolveModel(c *gin.Context) {
	var body resolveModelRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	decision, errResolve := h.engine.ResolveModel(c.Request.Context(), getUserID(c), body.Model)
	if errResolve != nil {
		h.fail(c, "resolve model", errResolve)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// ConsumeReport books a generated report against the user's quota.
func (h *EntitlementHandler) ConsumeReport(c *gin.Context) {
	outcome, errConsume := h.engine.ConsumeReport(c.Request.Context(), getUserID(c))
	if errConsume != nil {
		h.fail(c, "consume report", errConsume)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// ConsumeChat books a delivered chat message against the user's quota.
func (h *EntitlementHandler) ConsumeChat(c *gin.Context) {
	reportID := c.Param("reportID")
	if reportID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "report id is required"})
		return
	}
	outcome, errConsume := h.engine.ConsumeChat(c.Request.Context(), getUserID(c), reportID)
	if errConsume != nil {
		h.fail(c, "consume chat", errConsume)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// ConsumeSnapshot books a served snapshot against the user's quota.
func (h *EntitlementHandler) ConsumeSnapshot(c *gin.Context) {
	outcome, errConsume := h.engine.ConsumeSnapshot(c.Request.Context(), getUserID(c))
	if errConsume != nil {
		h.fail(c, "consume snapshot", errConsume)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// fail logs the failure and answers a generic 500.
func (h *EntitlementHandler) fail(c *gin.Context, op string, err error) {
	log.WithError(err).Errorf("entitlement %s failed", op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
