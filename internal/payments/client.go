package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tixgate/internal/shared/apperrors"
	"tixgate/internal/shared/config"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/shopspring/decimal"
)

// Payment statuses reported by the gateway.
const (
	StatusPaid      = "PAID"
	StatusCancelled = "CANCELLED"
	StatusFailed    = "FAILED"
)

// Payment is the gateway's view of a transaction.
type Payment struct {
	PaymentID string          `json:"payment_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// Gateway is the payment provider surface the saga depends on. Cancel calls
// must be idempotent on the provider side; the saga retries them.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	CancelPayment(ctx context.Context, paymentID, reason string) error
	PartialCancelPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) error
}

// Client talks to the provider's REST API behind a circuit breaker so a
// gateway outage sheds load fast instead of stacking up blocked webhooks.
type Client struct {
	baseURL    string
	apiSecret  string
	httpClient *http.Client
	cb         *breaker.Breaker
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		apiSecret: cfg.APISecret,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		// Open after 3 consecutive failures, half-open again after 30s.
		cb: breaker.New(3, 1, 30*time.Second),
	}
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment *Payment

	err := c.cb.Run(func() error {
		var body paymentResponse
		if err := c.do(ctx, http.MethodGet, c.paymentPath(paymentID), nil, &body); err != nil {
			return err
		}
		payment = &Payment{
			PaymentID: paymentID,
			Status:    body.Status,
			Amount:    body.Amount.Total,
			Currency:  body.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, c.wrapErr("get payment", paymentID, err)
	}
	return payment, nil
}

func (c *Client) CancelPayment(ctx context.Context, paymentID, reason string) error {
	request := cancelRequest{Reason: reason}

	err := c.cb.Run(func() error {
		return c.do(ctx, http.MethodPost, c.paymentPath(paymentID)+"/cancel", request, nil)
	})
	return c.wrapErr("cancel payment", paymentID, err)
}

func (c *Client) PartialCancelPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) error {
	request := cancelRequest{Reason: reason, Amount: &amount}

	err := c.cb.Run(func() error {
		return c.do(ctx, http.MethodPost, c.paymentPath(paymentID)+"/cancel", request, nil)
	})
	return c.wrapErr("partial cancel payment", paymentID, err)
}

type paymentResponse struct {
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Amount   struct {
		Total decimal.Decimal `json:"total"`
	} `json:"amount"`
}

type cancelRequest struct {
	Reason string           `json:"reason"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (c *Client) paymentPath(paymentID string) string {
	return "/payments/" + url.PathEscape(paymentID)
}

func (c *Client) do(ctx context.Context, method, path string, requestBody, responseBody interface{}) error {
	var reader io.Reader
	if requestBody != nil {
		payload, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "PortOne "+c.apiSecret)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(detail))
	}

	if responseBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(responseBody); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}

func (c *Client) wrapErr(op, paymentID string, err error) error {
	if err == nil {
		return nil
	}
	if err == breaker.ErrBreakerOpen {
		return fmt.Errorf("%s %s: circuit open: %w", op, paymentID, apperrors.ErrUpstreamUnavailable)
	}
	return fmt.Errorf("%s %s: %w", op, paymentID, err)
}
