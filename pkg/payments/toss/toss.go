// Package toss is a minimal Toss Payments API client: payment creation and
// confirmation with secret-key basic auth.
package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaseURL is the Toss Payments API endpoint.
const DefaultBaseURL = "https://api.tosspayments.com"

// Error is an API error returned by Toss Payments.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("toss: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("toss: %s", e.Message)
}

// Client talks to the Toss Payments API.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client. secretKey is required.
func NewClient(secretKey string, opts ...Option) *Client {
	if secretKey == "" {
		panic("toss: secret key is required")
	}
	c := &Client{
		secretKey:  secretKey,
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRequest asks the gateway to open a checkout for an order.
type CreateRequest struct {
	Amount        int64  `json:"amount"`
	OrderID       string `json:"orderId"`
	OrderName     string `json:"orderName"`
	SuccessURL    string `json:"successUrl"`
	FailURL       string `json:"failUrl"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
}

// Payment is the subset of the gateway's payment object we use.
type Payment struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	CheckoutURL string `json:"-"`
	Checkout    *struct {
		URL string `json:"url"`
	} `json:"checkout,omitempty"`
	URL string `json:"url,omitempty"`
}

// CreatePayment opens a payment. The returned CheckoutURL is empty when the
// gateway did not return one.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	var p Payment
	if err := c.post(ctx, "/v1/payments", req, &p); err != nil {
		return nil, err
	}
	switch {
	case p.Checkout != nil && p.Checkout.URL != "":
		p.CheckoutURL = p.Checkout.URL
	case p.URL != "":
		p.CheckoutURL = p.URL
	}
	return &p, nil
}

// ConfirmPayment approves an authorized payment.
func (c *Client) ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*Payment, error) {
	body := map[string]any{"orderId": orderID, "amount": amount}
	var p Payment
	if err := c.post(ctx, "/v1/payments/"+url.PathEscape(paymentKey), body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.secretKey+":")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{HTTPStatus: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("toss: decode response: %w", err)
	}
	return nil
}
