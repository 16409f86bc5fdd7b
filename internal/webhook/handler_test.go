package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
	"gorm.io/gorm"
)

func setupWebhook(t *testing.T, secret string, production bool) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.UserSubscription{}, &models.WebhookEvent{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	handler := NewHandler(conn, subscription.NewRegistry(conn), secret, production)
	router := gin.New()
	router.POST("/v0/billing/webhook", handler.Receive)
	return conn, router
}

func eventBody(t *testing.T, eventType, userID string, expirationMs, timestampMs int64, sandbox bool) []byte {
	t.Helper()
	event := map[string]any{
		"type":        eventType,
		"app_user_id": userID,
		"is_sandbox":  sandbox,
	}
	if expirationMs > 0 {
		event["expiration_at_ms"] = expirationMs
	}
	if timestampMs > 0 {
		event["event_timestamp_ms"] = timestampMs
	}
	body, errMarshal := json.Marshal(map[string]any{"api_version": "1.0", "event": event})
	if errMarshal != nil {
		t.Fatalf("marshal event: %v", errMarshal)
	}
	return body
}

func postEvent(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v0/billing/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	_, router := setupWebhook(t, "topsecret", false)
	body := eventBody(t, EventRenewal, "u1", 0, 0, false)

	w := postEvent(router, body, "deadbeef")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestReceiveAcceptsValidSignature(t *testing.T) {
	conn, router := setupWebhook(t, "topsecret", false)
	expiration := time.Now().Add(30 * 24 * time.Hour).UnixMilli()
	body := eventBody(t, EventInitialPurchase, "u1", expiration, time.Now().UnixMilli(), false)

	w := postEvent(router, body, Sign("topsecret", body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var record models.UserSubscription
	if errFind := conn.Where("user_id = ?", "u1").Take(&record).Error; errFind != nil {
		t.Fatalf("load subscription: %v", errFind)
	}
	if record.Tier != models.TierPlus || record.Status != models.StatusActive {
		t.Fatalf("expected plus/active, got %s/%s", record.Tier, record.Status)
	}
	if record.PeriodEnd == nil {
		t.Fatalf("expected period end from event")
	}
	if record.CancelAtPeriodEnd {
		t.Fatalf("purchase must clear the cancel flag")
	}
}

func TestReceiveRejectsMalformedPayload(t *testing.T) {
	_, router := setupWebhook(t, "", false)

	missingUser := []byte(`{"api_version":"1.0","event":{"type":"RENEWAL"}}`)
	if w := postEvent(router, missingUser, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("missing user: expected 400, got %d", w.Code)
	}
	if w := postEvent(router, []byte("{not json"), ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", w.Code)
	}
}

func TestReceiveDropsSandboxInProduction(t *testing.T) {
	conn, router := setupWebhook(t, "", true)
	body := eventBody(t, EventInitialPurchase, "u1", 0, 0, true)

	w := postEvent(router, body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp["skipped"] != true {
		t.Fatalf("expected skipped response, got %v", resp)
	}

	var count int64
	if errCount := conn.Model(&models.UserSubscription{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count subscriptions: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("sandbox event must not mutate state")
	}
}

func TestReceiveReplayIsIdempotent(t *testing.T) {
	conn, router := setupWebhook(t, "", false)
	expiration := time.Now().Add(30 * 24 * time.Hour).UnixMilli()
	body := eventBody(t, EventRenewal, "u1", expiration, time.Now().UnixMilli(), false)

	if w := postEvent(router, body, ""); w.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", w.Code)
	}
	var first models.UserSubscription
	if errFind := conn.Where("user_id = ?", "u1").Take(&first).Error; errFind != nil {
		t.Fatalf("load first: %v", errFind)
	}

	if w := postEvent(router, body, ""); w.Code != http.StatusOK {
		t.Fatalf("replay: %d", w.Code)
	}
	var second models.UserSubscription
	if errFind := conn.Where("user_id = ?", "u1").Take(&second).Error; errFind != nil {
		t.Fatalf("load second: %v", errFind)
	}

	if first.Tier != second.Tier || first.Status != second.Status ||
		first.CancelAtPeriodEnd != second.CancelAtPeriodEnd ||
		!first.PeriodEnd.Equal(*second.PeriodEnd) {
		t.Fatalf("replay diverged: %+v vs %+v", first, second)
	}
}

func TestBillingIssueThenRenewalSequence(t *testing.T) {
	conn, router := setupWebhook(t, "", false)
	base := time.Now()

	purchase := eventBody(t, EventInitialPurchase, "u1", base.Add(30*24*time.Hour).UnixMilli(), base.UnixMilli(), false)
	if w := postEvent(router, purchase, ""); w.Code != http.StatusOK {
		t.Fatalf("purchase: %d", w.Code)
	}

	issue := eventBody(t, EventBillingIssue, "u1", 0, base.Add(time.Hour).UnixMilli(), false)
	if w := postEvent(router, issue, ""); w.Code != http.StatusOK {
		t.Fatalf("billing issue: %d", w.Code)
	}
	var record models.UserSubscription
	if errFind := conn.Where("user_id = ?", "u1").Take(&record).Error; errFind != nil {
		t.Fatalf("load after issue: %v", errFind)
	}
	if record.Tier != models.TierEntry || record.Status != models.StatusPastDue {
		t.Fatalf("expected entry/past_due, got %s/%s", record.Tier, record.Status)
	}
	if record.PeriodEnd != nil {
		t.Fatalf("billing issue must clear period end")
	}

	renewal := eventBody(t, EventRenewal, "u1", base.Add(60*24*time.Hour).UnixMilli(), base.Add(2*time.Hour).UnixMilli(), false)
	if w := postEvent(router, renewal, ""); w.Code != http.StatusOK {
		t.Fatalf("renewal: %d", w.Code)
	}
	if errFind := conn.Where("user_id = ?", "u1").Take(&record).Error; errFind != nil {
		t.Fatalf("load after renewal: %v", errFind)
	}
	if record.Tier != models.TierPlus || record.Status != models.StatusActive || record.CancelAtPeriodEnd {
		t.Fatalf("renewal should restore plus/active without cancel flag, got %+v", record)
	}
}

func TestOutOfOrderRenewalAfterExpirationIsDropped(t *testing.T) {
	conn, router := setupWebhook(t, "", false)
	base := time.Now()

	expiration := eventBody(t, EventExpiration, "u1", 0, base.UnixMilli(), false)
	if w := postEvent(router, expiration, ""); w.Code != http.StatusOK {
		t.Fatalf("expiration: %d", w.Code)
	}

	lateRenewal := eventBody(t, EventRenewal, "u1", base.Add(30*24*time.Hour).UnixMilli(), base.Add(-time.Hour).UnixMilli(), false)
	w := postEvent(router, lateRenewal, "")
	if w.Code != http.StatusOK {
		t.Fatalf("late renewal should still be acknowledged: %d", w.Code)
	}

	var record models.UserSubscription
	if errFind := conn.Where("user_id = ?", "u1").Take(&record).Error; errFind != nil {
		t.Fatalf("load: %v", errFind)
	}
	if record.Tier != models.TierEntry {
		t.Fatalf("older renewal must not resurrect the subscription, got %s", record.Tier)
	}
}

func TestUnknownEventTypeAcknowledged(t *testing.T) {
	conn, router := setupWebhook(t, "", false)
	body := eventBody(t, "SUBSCRIBER_ALIAS", "u1", 0, 0, false)

	w := postEvent(router, body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp["unhandled"] != true {
		t.Fatalf("expected unhandled acknowledgement, got %v", resp)
	}

	var count int64
	if errCount := conn.Model(&models.UserSubscription{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count subscriptions: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("unknown event must not mutate state")
	}
}

func TestReceiveJournalsEvents(t *testing.T) {
	conn, router := setupWebhook(t, "", false)
	body := eventBody(t, EventCancellation, "u1", time.Now().Add(10*24*time.Hour).UnixMilli(), time.Now().UnixMilli(), false)

	if w := postEvent(router, body, ""); w.Code != http.StatusOK {
		t.Fatalf("cancellation: %d", w.Code)
	}

	var journal models.WebhookEvent
	if errFind := conn.Where("user_id = ?", "u1").Take(&journal).Error; errFind != nil {
		t.Fatalf("load journal: %v", errFind)
	}
	if journal.Type != EventCancellation || !journal.Applied {
		t.Fatalf("expected applied cancellation journal row, got %+v", journal)
	}
	if journal.EventID == "" {
		t.Fatalf("journal row must carry an event id")
	}

	var record models.UserSubscription
	if errFind := conn.Where("user_id = ?", "u1").Take(&record).Error; errFind != nil {
		t.Fatalf("load subscription: %v", errFind)
	}
	if record.Status != models.StatusCancelled || !record.CancelAtPeriodEnd {
		t.Fatalf("cancellation should set status and flag, got %+v", record)
	}
	if record.Tier != models.TierEntry {
		t.Fatalf("cancellation must leave tier unchanged (entry default), got %s", record.Tier)
	}
}
