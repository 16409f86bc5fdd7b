// Package reconcile cross-checks cached subscription state against the
// billing provider and corrects drift from missed or delayed webhooks.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
)

const defaultRequestTimeout = 10 * time.Second

// ErrProviderUnavailable wraps transport and decoding failures from the
// billing provider query endpoint.
var ErrProviderUnavailable = errors.New("reconcile: provider unavailable")

// Client queries the billing provider for a user's authoritative state.
type Client interface {
	Subscriber(ctx context.Context, userID string) (subscription.State, error)
}

// HTTPClient implements Client against the provider's REST query endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient constructs an HTTPClient. Returns nil when no base URL is
// configured, which disables reconciliation.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

// subscriberResponse is the provider's query payload.
type subscriberResponse struct {
	AppUserID         string `json:"app_user_id"`
	Tier              string `json:"tier"`
	Status            string `json:"status"`
	PeriodEndMs       *int64 `json:"period_end_ms"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// Subscriber fetches the authoritative subscription state for one user.
func (c *HTTPClient) Subscriber(ctx context.Context, userID string) (subscription.State, error) {
	endpoint := fmt.Sprintf("%s/subscribers/%s", c.baseURL, url.PathEscape(userID))
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if errReq != nil {
		return subscription.State{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, errReq)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return subscription.State{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown subscriber: the provider has never billed this user.
		return entryState(time.Now()), nil
	}
	if resp.StatusCode != http.StatusOK {
		return subscription.State{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return subscription.State{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, errRead)
	}
	var decoded subscriberResponse
	if errDecode := json.Unmarshal(body, &decoded); errDecode != nil {
		return subscription.State{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, errDecode)
	}

	state := subscription.State{
		Tier:              normalizeTier(decoded.Tier),
		Status:            normalizeStatus(decoded.Status),
		CancelAtPeriodEnd: decoded.CancelAtPeriodEnd,
		AsOf:              time.Now().UTC(),
	}
	if decoded.PeriodEndMs != nil && *decoded.PeriodEndMs > 0 {
		periodEnd := time.UnixMilli(*decoded.PeriodEndMs).UTC()
		state.PeriodEnd = &periodEnd
	}
	return state, nil
}

func entryState(asOf time.Time) subscription.State {
	return subscription.State{
		Tier:   models.TierEntry,
		Status: models.StatusActive,
		AsOf:   asOf.UTC(),
	}
}

func normalizeTier(tierName string) string {
	switch strings.ToLower(strings.TrimSpace(tierName)) {
	case models.TierPlus:
		return models.TierPlus
	default:
		return models.TierEntry
	}
}

func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.StatusCancelled:
		return models.StatusCancelled
	case models.StatusPastDue:
		return models.StatusPastDue
	case models.StatusTrialing:
		return models.StatusTrialing
	default:
		return models.StatusActive
	}
}
