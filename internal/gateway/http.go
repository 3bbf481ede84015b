package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/config"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

// intentResponse is the gateway's payment intent representation.
type intentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Error        *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// httpAdapter implements Adapter against a Stripe-style REST API.
type httpAdapter struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewHTTPAdapter creates the production gateway adapter. The client timeout
// bounds every call; a timed-out fetch surfaces as ErrUnavailable and leaves
// no local side effects.
func NewHTTPAdapter(cfg *config.Config) Adapter {
	return &httpAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

func (a *httpAdapter) CreateIntent(ctx context.Context, amountMinor int64, currencyCode string, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", strings.ToLower(currencyCode))
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	resp, err := a.do(ctx, http.MethodPost, "/v1/payment_intents", form)
	if err != nil {
		return nil, err
	}
	return &Intent{
		GatewayIntentID: resp.ID,
		Status:          models.IntentStatus(resp.Status),
		ClientSecret:    resp.ClientSecret,
	}, nil
}

func (a *httpAdapter) GetIntentStatus(ctx context.Context, gatewayIntentID string) (models.IntentStatus, error) {
	resp, err := a.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(gatewayIntentID), nil)
	if err != nil {
		return "", err
	}
	return models.IntentStatus(resp.Status), nil
}

func (a *httpAdapter) CancelIntent(ctx context.Context, gatewayIntentID string) error {
	_, err := a.do(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(gatewayIntentID)+"/cancel", url.Values{})
	return err
}

// do performs one gateway round trip. Transport errors (including the client
// timeout) and 5xx/429 responses map to ErrUnavailable; a 404 maps to
// ErrIntentNotFound.
func (a *httpAdapter) do(ctx context.Context, method, path string, form url.Values) (*intentResponse, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.GatewayBaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating gateway request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.GatewaySecretKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		log.Printf("Gateway request %s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrIntentNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		log.Printf("Gateway %s %s returned status %d: %s", method, path, resp.StatusCode, string(raw))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed intentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing gateway response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := "unknown gateway error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("gateway rejected %s %s (status %d): %s", method, path, resp.StatusCode, msg)
	}
	return &parsed, nil
}

var _ Adapter = (*httpAdapter)(nil)
