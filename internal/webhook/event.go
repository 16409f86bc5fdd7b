// Package webhook ingests billing provider events and translates them into
// subscription registry mutations.
package webhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
)

// Billing provider event taxonomy.
const (
	EventInitialPurchase = "INITIAL_PURCHASE"
	EventRenewal         = "RENEWAL"
	EventUncancellation  = "UNCANCELLATION"
	EventProductChange   = "PRODUCT_CHANGE"
	EventCancellation    = "CANCELLATION"
	EventExpiration      = "EXPIRATION"
	EventBillingIssue    = "BILLING_ISSUE"
	EventTransfer        = "TRANSFER"
)

// ErrMalformedEvent indicates a payload missing its type or target user.
var ErrMalformedEvent = errors.New("webhook: malformed event")

// Envelope is the provider's webhook body.
type Envelope struct {
	APIVersion string `json:"api_version"` // Provider API version.
	Event      Event  `json:"event"`       // The billing event.
}

// Event carries the fields of the taxonomy this system consumes. The
// provider attaches many more free-form fields; they stay in the raw payload
// journal and are otherwise ignored.
type Event struct {
	Type             string `json:"type"`               // Event type from the fixed taxonomy.
	AppUserID        string `json:"app_user_id"`        // Target user identifier.
	ExpirationAtMs   *int64 `json:"expiration_at_ms"`   // Entitlement expiration, epoch millis.
	EventTimestampMs *int64 `json:"event_timestamp_ms"` // Provider event timestamp, epoch millis.
	IsSandbox        bool   `json:"is_sandbox"`         // Sandbox flag.
}

// ParseEnvelope decodes and validates a raw webhook body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var envelope Envelope
	if errDecode := json.Unmarshal(body, &envelope); errDecode != nil {
		return nil, errors.Join(ErrMalformedEvent, errDecode)
	}
	if strings.TrimSpace(envelope.Event.Type) == "" || strings.TrimSpace(envelope.Event.AppUserID) == "" {
		return nil, ErrMalformedEvent
	}
	return &envelope, nil
}

// OccurredAt resolves the event's ordering key, falling back to the receipt
// time when the provider omitted a timestamp.
func (e Event) OccurredAt(received time.Time) time.Time {
	if e.EventTimestampMs != nil && *e.EventTimestampMs > 0 {
		return time.UnixMilli(*e.EventTimestampMs).UTC()
	}
	return received.UTC()
}

// expiration converts the millis expiration into a time, when present.
func (e Event) expiration() *time.Time {
	if e.ExpirationAtMs == nil || *e.ExpirationAtMs <= 0 {
		return nil
	}
	t := time.UnixMilli(*e.ExpirationAtMs).UTC()
	return &t
}

// Translate maps an event onto the subscription patch it intends. The second
// return reports whether the event mutates state at all; unknown types return
// false with handled=false so callers can acknowledge without pretending to
// have processed them.
func Translate(event Event, received time.Time) (patch subscription.Patch, mutates bool, handled bool) {
	occurredAt := event.OccurredAt(received)

	switch event.Type {
	case EventInitialPurchase, EventRenewal, EventUncancellation, EventProductChange:
		tier := models.TierPlus
		status := models.StatusActive
		cancel := false
		patch = subscription.Patch{
			Tier:              &tier,
			Status:            &status,
			PeriodEnd:         event.expiration(),
			CancelAtPeriodEnd: &cancel,
			OccurredAt:        occurredAt,
		}
		return patch, true, true
	case EventCancellation:
		status := models.StatusCancelled
		cancel := true
		patch = subscription.Patch{
			Status:            &status,
			PeriodEnd:         event.expiration(),
			CancelAtPeriodEnd: &cancel,
			OccurredAt:        occurredAt,
		}
		return patch, true, true
	case EventExpiration:
		tier := models.TierEntry
		status := models.StatusActive
		cancel := false
		patch = subscription.Patch{
			Tier:              &tier,
			Status:            &status,
			ClearPeriodEnd:    true,
			CancelAtPeriodEnd: &cancel,
			OccurredAt:        occurredAt,
		}
		return patch, true, true
	case EventBillingIssue:
		tier := models.TierEntry
		status := models.StatusPastDue
		cancel := false
		patch = subscription.Patch{
			Tier:              &tier,
			Status:            &status,
			ClearPeriodEnd:    true,
			CancelAtPeriodEnd: &cancel,
			OccurredAt:        occurredAt,
		}
		return patch, true, true
	case EventTransfer:
		// Alias merges carry no entitlement change for the target user.
		return subscription.Patch{}, false, true
	default:
		return subscription.Patch{}, false, false
	}
}
