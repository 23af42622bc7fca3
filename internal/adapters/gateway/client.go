// Package gateway implements the outbound payment gateway port against a
// Razorpay-compatible REST API.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"festreg/internal/domain"
)

// Config holds gateway credentials and tuning.
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	// Timeout bounds every outbound call; an expired timeout is a failure,
	// never a success.
	Timeout time.Duration
}

type client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient returns a PaymentGateway calling the configured REST API with
// basic auth. A nil httpClient gets one with the configured timeout.
func NewClient(cfg Config, httpClient *http.Client) domain.PaymentGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &client{cfg: cfg, httpClient: httpClient}
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

func (c *client) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*domain.GatewayOrder, error) {
	body := orderRequest{Amount: amount, Currency: currency, Receipt: receipt, Notes: notes}
	var order domain.GatewayOrder
	if err := c.do(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *client) FetchPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	var payment domain.GatewayPayment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type refundResponse struct {
	ID string `json:"id"`
}

func (c *client) CreateRefund(ctx context.Context, paymentID string, amount int64) (string, error) {
	var resp refundResponse
	if err := c.do(ctx, http.MethodPost, "/payments/"+paymentID+"/refund", refundRequest{Amount: amount}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: gateway returned status %d: %s", domain.ErrExternalService, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode gateway response: %v", domain.ErrExternalService, err)
		}
	}
	return nil
}

// VerifyCheckoutSignature checks the client-supplied payment proof: the
// hex-encoded HMAC-SHA256 of "order_id|payment_id" under the key secret.
func (c *client) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	expected := computeHMAC([]byte(orderID+"|"+paymentID), []byte(c.cfg.KeySecret))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the hex-encoded HMAC-SHA256 of the raw
// webhook body under the webhook secret.
func (c *client) VerifyWebhookSignature(body []byte, signature string) bool {
	expected := computeHMAC(body, []byte(c.cfg.WebhookSecret))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
