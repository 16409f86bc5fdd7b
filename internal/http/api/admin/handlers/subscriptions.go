package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vitalscope/vitalscope-business/internal/entitlement"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/reconcile"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
)

// SubscriptionHandler exposes operator views and overrides of user
// subscriptions.
type SubscriptionHandler struct {
	registry *subscription.Registry
	syncer   *reconcile.Syncer
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(registry *subscription.Registry, syncer *reconcile.Syncer) *SubscriptionHandler {
	return &SubscriptionHandler{registry: registry, syncer: syncer}
}

// subscriptionResponse is the operator view of a subscription row.
type subscriptionResponse struct {
	UserID            string     `json:"user_id"`
	Tier              string     `json:"tier"`
	EffectiveTier     string     `json:"effective_tier"`
	Status            string     `json:"status"`
	PeriodEnd         *time.Time `json:"period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	LastEventAt       *time.Time `json:"last_event_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toResponse(record *models.UserSubscription) subscriptionResponse {
	return subscriptionResponse{
		UserID:            record.UserID,
		Tier:              record.Tier,
		EffectiveTier:     entitlement.EffectiveTier(record, time.Now()),
		Status:            record.Status,
		PeriodEnd:         record.PeriodEnd,
		CancelAtPeriodEnd: record.CancelAtPeriodEnd,
		LastEventAt:       record.LastEventAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

// Get returns the stored subscription for a user.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	record, errGet := h.registry.Get(c.Request.Context(), c.Param("userID"))
	if errGet != nil {
		log.WithError(errGet).Error("admin subscription lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toResponse(record))
}

// overrideTierRequest defines the request body for a tier override.
type overrideTierRequest struct {
	Tier string `json:"tier"`
}

// OverrideTier forces a user's tier, bypassing billing state.
func (h *SubscriptionHandler) OverrideTier(c *gin.Context) {
	var body overrideTierRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tierName := strings.TrimSpace(body.Tier)
	if tierName != models.TierEntry && tierName != models.TierPlus {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
		return
	}

	record, errForce := h.registry.ForceTier(c.Request.Context(), c.Param("userID"), tierName)
	if errForce != nil {
		log.WithError(errForce).Error("admin tier override failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	log.Infof("admin %s forced tier %s for user %s", c.GetString("adminID"), tierName, record.UserID)
	c.JSON(http.StatusOK, toResponse(record))
}

// Reconcile queries the billing provider now and returns the settled record.
func (h *SubscriptionHandler) Reconcile(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation is not configured"})
		return
	}
	record, errRefresh := h.syncer.Refresh(c.Request.Context(), c.Param("userID"))
	if errRefresh != nil {
		log.WithError(errRefresh).Error("admin reconcile failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toResponse(record))
}
