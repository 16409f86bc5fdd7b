package webhook

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vitalscope/vitalscope-business/internal/metrics"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Handler receives billing provider webhooks.
type Handler struct {
	db         *gorm.DB
	registry   *subscription.Registry
	secret     string
	production bool
	now        func() time.Time

	warnNoSecret sync.Once
}

// NewHandler constructs a webhook Handler. An empty secret disables
// signature verification, which is a non-production posture.
func NewHandler(conn *gorm.DB, registry *subscription.Registry, secret string, production bool) *Handler {
	return &Handler{
		db:         conn,
		registry:   registry,
		secret:     secret,
		production: production,
		now:        time.Now,
	}
}

// Receive handles POSTed billing events. Signature failures return 401 and
// malformed payloads 400, both before any state mutation. Processing errors
// return 500 so the provider re-delivers; application is idempotent, so
// retries are safe.
func (h *Handler) Receive(c *gin.Context) {
	body, errRead := c.GetRawData()
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.secret == "" {
		h.warnNoSecret.Do(func() {
			log.Warn("webhook: no signing secret configured, accepting unverified events")
		})
	} else if !VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		log.Warn("webhook: rejected event with bad signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	envelope, errParse := ParseEnvelope(body)
	if errParse != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	event := envelope.Event

	if event.IsSandbox && h.production {
		metrics.WebhookEvents.WithLabelValues(event.Type, "skipped").Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "skipped": true})
		return
	}

	received := h.now().UTC()
	patch, mutates, handled := Translate(event, received)

	if errJournal := h.journal(c, event, body, received, mutates); errJournal != nil {
		log.WithError(errJournal).Error("webhook: journal event failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event persistence failed"})
		return
	}

	if !handled {
		log.WithField("type", event.Type).Info("webhook: unhandled event type acknowledged")
		metrics.WebhookEvents.WithLabelValues(event.Type, "unhandled").Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "unhandled": true})
		return
	}
	if !mutates {
		metrics.WebhookEvents.WithLabelValues(event.Type, "noop").Inc()
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if _, errApply := h.registry.Apply(c.Request.Context(), event.AppUserID, patch); errApply != nil {
		if errors.Is(errApply, subscription.ErrStaleEvent) {
			log.WithFields(log.Fields{"type": event.Type, "user": event.AppUserID}).
				Info("webhook: dropped stale out-of-order event")
			metrics.WebhookEvents.WithLabelValues(event.Type, "stale").Inc()
			c.JSON(http.StatusOK, gin.H{"success": true, "stale": true})
			return
		}
		log.WithError(errApply).Error("webhook: apply event failed")
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}

	metrics.WebhookEvents.WithLabelValues(event.Type, "applied").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// journal records the accepted event for auditing.
func (h *Handler) journal(c *gin.Context, event Event, body []byte, received time.Time, applied bool) error {
	row := models.WebhookEvent{
		EventID:    uuid.NewString(),
		Type:       event.Type,
		UserID:     event.AppUserID,
		OccurredAt: event.OccurredAt(received),
		Sandbox:    event.IsSandbox,
		Applied:    applied,
		Payload:    datatypes.JSON(body),
	}
	return h.db.WithContext(c.Request.Context()).Create(&row).Error
}
