package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/lumastream/coinledger/internal/config"
	"github.com/lumastream/coinledger/internal/monitoring"
)

// Provider errors
var (
	ErrProviderAPIError    = errors.New("payment provider API error")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidWebhookSig   = errors.New("invalid webhook signature")
)

// ChargeMetadata is echoed back verbatim by the provider on the inbound
// confirmation event
type ChargeMetadata struct {
	Type             string `json:"type"`
	CoinsGranted     int64  `json:"coins_granted"`
	AccountID        string `json:"account_id"`
	AccountHandle    string `json:"account_handle"`
	PaymentReference string `json:"payment_reference"`
}

type createChargeRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	AmountMinor int64          `json:"amount_minor"`
	Currency    string         `json:"currency"`
	RedirectURL string         `json:"redirect_url"`
	Metadata    ChargeMetadata `json:"metadata"`
}

type chargeData struct {
	ID        string         `json:"id"`
	Code      string         `json:"code"`
	HostedURL string         `json:"hosted_url"`
	ExpiresAt time.Time      `json:"expires_at"`
	Metadata  ChargeMetadata `json:"metadata"`
}

type createChargeResponse struct {
	Data chargeData `json:"data"`
}

// Charge represents a created provider charge
type Charge struct {
	ProviderChargeID string    `json:"provider_charge_id"`
	HostedURL        string    `json:"hosted_url"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Client talks to the payment provider's charge API. Outbound calls run
// behind a circuit breaker so a degraded provider fails fast instead of
// tying up request handlers.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
}

// NewClient creates a new provider client
func NewClient(cfg *config.ProviderConfig) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-provider",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("circuit_breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			monitoring.SetCircuitBreakerState(name, breakerStateValue(to))
		},
	})

	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

// CreateCharge asks the provider to collect the given amount. The metadata
// comes back untouched on the confirmation event, which is how the inbound
// processor knows what to credit.
func (c *Client) CreateCharge(ctx context.Context, req *createChargeRequest) (*Charge, error) {
	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return c.createChargeAPI(ctx, req)
	})
	monitoring.RecordProviderLatency("create_charge", time.Since(start))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().Msg("Circuit breaker is open, rejecting charge creation")
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}

	data := result.(*chargeData)
	return &Charge{
		ProviderChargeID: data.ID,
		HostedURL:        data.HostedURL,
		ExpiresAt:        data.ExpiresAt,
	}, nil
}

func (c *Client) createChargeAPI(ctx context.Context, req *createChargeRequest) (*chargeData, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/charges", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrProviderAPIError, resp.StatusCode, string(body))
	}

	var chargeResp createChargeResponse
	if err := json.Unmarshal(body, &chargeResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &chargeResp.Data, nil
}

// VerifySignature checks the HMAC-SHA256 signature on an inbound webhook
// payload
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		// No secret configured, skip verification (development only)
		return true
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
