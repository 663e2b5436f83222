package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/acme/popup-campaign-engine/internal/config"
	apperrors "github.com/acme/popup-campaign-engine/pkg/errors"
)

// HTTPClient talks to the commerce platform's price-rule API. Calls run
// through a circuit breaker so a degraded platform fails fast instead of
// holding storefront requests open.
type HTTPClient struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[CreatedDiscount]
}

// NewHTTPClient constructs the client from configuration.
func NewHTTPClient(cfg config.CommerceConfig) *HTTPClient {
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "commerce-discounts",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[CreatedDiscount](settings),
	}
}

type discountPayload struct {
	StoreID         string     `json:"store_id"`
	CampaignID      string     `json:"campaign_id"`
	ValueType       string     `json:"value_type"`
	Value           float64    `json:"value"`
	AuthorizedEmail string     `json:"authorized_email,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	OncePerCustomer bool       `json:"once_per_customer"`
}

type discountResponse struct {
	Code string `json:"code"`
	ID   string `json:"id"`
}

// CreateDiscount creates a single-use, store-scoped discount code.
// Context timeouts propagate to the request; they are never masked.
func (c *HTTPClient) CreateDiscount(ctx context.Context, req CreateDiscountRequest) (CreatedDiscount, error) {
	return c.breaker.Execute(func() (CreatedDiscount, error) {
		return c.createDiscount(ctx, req)
	})
}

func (c *HTTPClient) createDiscount(ctx context.Context, req CreateDiscountRequest) (CreatedDiscount, error) {
	payload := discountPayload{
		StoreID:         req.StoreID.String(),
		CampaignID:      req.CampaignID.String(),
		ValueType:       string(req.ValueType),
		Value:           req.Value,
		AuthorizedEmail: req.AuthorizedEmail,
		ExpiresAt:       req.ExpiresAt,
		OncePerCustomer: true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CreatedDiscount{}, fmt.Errorf("commerce: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/%s/discount_codes", c.baseURL, c.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return CreatedDiscount{}, fmt.Errorf("commerce: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CreatedDiscount{}, fmt.Errorf("commerce: %w: %v", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return CreatedDiscount{}, fmt.Errorf("commerce: %w: status %d", apperrors.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return CreatedDiscount{}, fmt.Errorf("commerce: create discount rejected: status %d: %s", resp.StatusCode, data)
	}

	var out discountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CreatedDiscount{}, fmt.Errorf("commerce: decode response: %w", err)
	}
	if out.Code == "" {
		return CreatedDiscount{}, fmt.Errorf("commerce: platform returned empty code")
	}

	return CreatedDiscount{Code: out.Code, ID: out.ID}, nil
}
