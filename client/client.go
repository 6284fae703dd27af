package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"payflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Payout is the API's payout projection.
type Payout struct {
	ID                string `json:"id"`
	Reference         string `json:"reference"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	ProviderReference string `json:"provider_reference"`
	ErrorCode         string `json:"error_code"`
	ErrorMessage      string `json:"error_message"`
}

// Terminal reports whether the payout has settled.
func (p Payout) Terminal() bool {
	return p.Status == "succeeded" || p.Status == "failed" || p.Status == "cancelled"
}

// CreatePayoutParams describes one payout request. A zero IdempotencyKey
// gets a generated one, so plain calls are still safe to retry.
type CreatePayoutParams struct {
	Amount         string
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// PayflowClient is a small SDK over the payout API. It respects
// Retry-After on 429 and reuses the idempotency key across its own
// retries, so a request is never duplicated.
type PayflowClient struct {
	addr       string
	httpClient *http.Client

	mu    sync.RWMutex
	token string

	// MaxAttempts bounds retries on 429 responses per call.
	MaxAttempts int
}

func NewPayflowClient(addr string) *PayflowClient {
	return &PayflowClient{
		addr:        addr,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		MaxAttempts: 3,
	}
}

// SetToken installs a bearer token obtained out of band.
func (c *PayflowClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Login authenticates and stores the access token for later calls.
func (c *PayflowClient) Login(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, "POST", c.addr+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "login failed"}
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return err
	}
	c.SetToken(tokens.AccessToken)
	return nil
}

// CreatePayout submits a payout. 429 responses are retried after the
// server-advised delay with the same idempotency key.
func (c *PayflowClient) CreatePayout(ctx context.Context, params CreatePayoutParams) (*Payout, error) {
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = uuid.New().String()
	}

	payload, err := json.Marshal(map[string]any{
		"amount":   params.Amount,
		"currency": params.Currency,
		"metadata": params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		payout, err := c.doCreate(ctx, payload, params.IdempotencyKey)
		if err == nil {
			return payout, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
			return nil, err
		}

		wait := apiErr.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		logger.Warn("rate limited, waiting before retry",
			zap.Duration("retry_after", wait),
			zap.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c *PayflowClient) doCreate(ctx context.Context, payload []byte, idemKey string) (*Payout, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.addr+"/v1/payouts", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idemKey)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var payout Payout
		if err := json.NewDecoder(resp.Body).Decode(&payout); err != nil {
			return nil, err
		}
		return &payout, nil
	default:
		return nil, decodeError(resp)
	}
}

// GetPayout fetches one payout by id.
func (c *PayflowClient) GetPayout(ctx context.Context, id string) (*Payout, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.addr+"/v1/payouts/"+id, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var payout Payout
	if err := json.NewDecoder(resp.Body).Decode(&payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// WaitForSettlement polls until the payout reaches a terminal status or
// ctx expires. Settlement arrives by webhook on the server side, so the
// interval can be generous.
func (c *PayflowClient) WaitForSettlement(ctx context.Context, id string, interval time.Duration) (*Payout, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		payout, err := c.GetPayout(ctx, id)
		if err != nil {
			return nil, err
		}
		if payout.Terminal() {
			return payout, nil
		}

		select {
		case <-ctx.Done():
			return payout, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *PayflowClient) authorize(req *http.Request) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Error
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
