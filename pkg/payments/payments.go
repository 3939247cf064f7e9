// Package payments sells credits through Toss Payments: order creation,
// confirmation after checkout and the confirmation webhook.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/credits"
	"github.com/haivivi/giztalk/pkg/payments/toss"
)

const (
	// MinAmount is the smallest payment in won.
	MinAmount = 1000

	// DefaultCreditsPer5000Won is the exchange rate when none is configured.
	DefaultCreditsPer5000Won = 10000

	// EventPaymentConfirmed is the only webhook event acted upon.
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"

	defaultAppURL = "http://localhost:5173"
)

var (
	ErrNotFound      = errors.New("payments: payment not found")
	ErrAmountTooLow  = errors.New("payments: amount must be at least 1000 won")
	ErrMissingFields = errors.New("payments: missing required fields")

	// ErrAmountMismatch is returned when a confirmation names a different
	// amount than the payment was created with.
	ErrAmountMismatch = errors.New("payments: amount does not match the order")
)

// GatewayError wraps a failed gateway call.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("payments: %s: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

// Status is a payment's state.
type Status string

const (
	StatusReady      Status = "READY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusCanceled   Status = "CANCELED"
)

// Payment is a credit purchase.
type Payment struct {
	ID           string    `json:"id" msgpack:"id"`
	UserID       string    `json:"user_id" msgpack:"user_id"`
	OrderID      string    `json:"order_id" msgpack:"order_id"`
	PaymentKey   string    `json:"payment_key,omitempty" msgpack:"payment_key"`
	Amount       int64     `json:"amount" msgpack:"amount"`
	CreditsAdded float64   `json:"credits_added" msgpack:"credits_added"`
	Status       Status    `json:"status" msgpack:"status"`
	CreatedAt    time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Store persists payments.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error

	// PaymentByOrder returns ErrNotFound for unknown order ids.
	PaymentByOrder(ctx context.Context, orderID string) (*Payment, error)

	// SetPaymentStatus updates status and, when non-empty, the payment key.
	SetPaymentStatus(ctx context.Context, id string, status Status, paymentKey string) error

	// CompletePayment moves the payment to DONE unless it already is, and
	// reports whether this call made the transition.
	CompletePayment(ctx context.Context, id, paymentKey string) (bool, error)
}

// Gateway is the payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req toss.CreateRequest) (*toss.Payment, error)
	ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*toss.Payment, error)
}

// Crediter adds purchased credits to a user.
type Crediter interface {
	Credit(ctx context.Context, userID string, amount float64, paymentID, description string) (credits.Result, error)
}

// Config holds the payment settings.
type Config struct {
	CreditsPer5000Won int
	// AppURL is the public base URL used for the checkout redirects.
	AppURL string
}

// Service runs the payment flows.
type Service struct {
	store   Store
	gateway Gateway
	ledger  Crediter
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService returns a payment service.
func NewService(store Store, gateway Gateway, ledger Crediter, cfg Config, logger *slog.Logger) *Service {
	if cfg.CreditsPer5000Won <= 0 {
		cfg.CreditsPer5000Won = DefaultCreditsPer5000Won
	}
	if cfg.AppURL == "" {
		cfg.AppURL = defaultAppURL
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, gateway: gateway, ledger: ledger, cfg: cfg, logger: logger, now: time.Now}
}

// CreditsFor converts a won amount into credits.
func (s *Service) CreditsFor(amount int64) float64 {
	if amount <= 0 {
		return 0
	}
	return float64(amount * int64(s.cfg.CreditsPer5000Won) / 5000)
}

// CreateResult is returned by Create.
type CreateResult struct {
	PaymentID    string  `json:"paymentId"`
	OrderID      string  `json:"orderId"`
	Amount       int64   `json:"amount"`
	CreditsToAdd float64 `json:"creditsToAdd"`
	CheckoutURL  string  `json:"checkoutUrl,omitempty"`
	PaymentKey   string  `json:"paymentKey,omitempty"`
}

// Create records a READY payment and opens it at the gateway.
func (s *Service) Create(ctx context.Context, user account.User, amount int64) (*CreateResult, error) {
	if amount < MinAmount {
		return nil, ErrAmountTooLow
	}
	now := s.now()
	p := &Payment{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		OrderID:      newOrderID(now),
		Amount:       amount,
		CreditsAdded: s.CreditsFor(amount),
		Status:       StatusReady,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("payments: save payment: %w", err)
	}

	tp, err := s.gateway.CreatePayment(ctx, toss.CreateRequest{
		Amount:        amount,
		OrderID:       p.OrderID,
		OrderName:     fmt.Sprintf("AI 대화 크레딧 %s개", groupThousands(int64(p.CreditsAdded))),
		SuccessURL:    s.cfg.AppURL + "/payments/success?orderId=" + p.OrderID,
		FailURL:       s.cfg.AppURL + "/payments/fail?orderId=" + p.OrderID,
		CustomerEmail: user.Email,
		CustomerName:  user.Name,
	})
	if err != nil {
		s.logger.Error("gateway create failed", "order_id", p.OrderID, "error", err)
		s.setStatus(ctx, p.ID, StatusCanceled, "")
		return nil, &GatewayError{Op: "create", Err: err}
	}
	s.setStatus(ctx, p.ID, StatusInProgress, tp.PaymentKey)

	return &CreateResult{
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		Amount:       amount,
		CreditsToAdd: p.CreditsAdded,
		CheckoutURL:  tp.CheckoutURL,
		PaymentKey:   tp.PaymentKey,
	}, nil
}

// ConfirmRequest carries the checkout redirect parameters.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// ConfirmResult is returned by Confirm.
type ConfirmResult struct {
	AlreadyDone  bool    `json:"alreadyDone,omitempty"`
	PaymentID    string  `json:"id"`
	Amount       int64   `json:"amount"`
	CreditsAdded float64 `json:"creditsAdded"`
	NewBalance   float64 `json:"newBalance"`
}

// Confirm approves the user's payment and credits the purchase. Confirming
// an already completed payment succeeds without crediting again.
func (s *Service) Confirm(ctx context.Context, userID string, req ConfirmRequest) (*ConfirmResult, error) {
	if req.PaymentKey == "" || req.OrderID == "" || req.Amount == 0 {
		return nil, ErrMissingFields
	}
	p, err := s.store.PaymentByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotFound
	}
	if req.Amount != p.Amount {
		s.logger.Warn("confirm amount mismatch", "order_id", p.OrderID, "amount", req.Amount, "expected", p.Amount)
		return nil, ErrAmountMismatch
	}
	res := &ConfirmResult{PaymentID: p.ID, Amount: p.Amount, CreditsAdded: p.CreditsAdded}
	if p.Status == StatusDone {
		res.AlreadyDone = true
		return res, nil
	}

	if _, err := s.gateway.ConfirmPayment(ctx, req.PaymentKey, req.OrderID, req.Amount); err != nil {
		s.logger.Error("gateway confirm failed", "order_id", p.OrderID, "error", err)
		s.setStatus(ctx, p.ID, StatusCanceled, "")
		return nil, &GatewayError{Op: "confirm", Err: err}
	}

	done, err := s.store.CompletePayment(ctx, p.ID, req.PaymentKey)
	if err != nil {
		return nil, fmt.Errorf("payments: complete: %w", err)
	}
	if !done {
		res.AlreadyDone = true
		return res, nil
	}
	r, err := s.ledger.Credit(ctx, p.UserID, p.CreditsAdded, p.ID,
		fmt.Sprintf("결제 완료: %s원 → %s 크레딧", groupThousands(p.Amount), groupThousands(int64(p.CreditsAdded))))
	if err != nil {
		// The gateway already charged the user; the credit is settled by hand.
		s.logger.Error("credit after confirm failed", "payment_id", p.ID, "user_id", p.UserID, "error", err)
		return res, nil
	}
	res.NewBalance = r.NewBalance
	s.logger.Info("payment confirmed", "payment_id", p.ID, "user_id", p.UserID, "credits", p.CreditsAdded)
	return res, nil
}

// WebhookEvent is the gateway's notification body.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		PaymentKey string `json:"paymentKey"`
		OrderID    string `json:"orderId"`
		Amount     int64  `json:"amount"`
	} `json:"data"`
}

// WebhookResult describes what the webhook did.
type WebhookResult string

const (
	WebhookIgnored     WebhookResult = "ignored"
	WebhookAlreadyDone WebhookResult = "already_done"
	WebhookCredited    WebhookResult = "credited"
)

// Webhook handles a gateway notification. Only PAYMENT_CONFIRMED is acted
// upon; it credits the payment's owner once. An amount in the notification
// must match the order.
func (s *Service) Webhook(ctx context.Context, ev WebhookEvent) (WebhookResult, error) {
	if ev.Event != EventPaymentConfirmed {
		return WebhookIgnored, nil
	}
	if ev.Data.PaymentKey == "" || ev.Data.OrderID == "" {
		return "", ErrMissingFields
	}
	p, err := s.store.PaymentByOrder(ctx, ev.Data.OrderID)
	if err != nil {
		return "", err
	}
	if ev.Data.Amount != 0 && ev.Data.Amount != p.Amount {
		s.logger.Warn("webhook amount mismatch", "order_id", p.OrderID, "amount", ev.Data.Amount, "expected", p.Amount)
		return "", ErrAmountMismatch
	}
	if p.Status == StatusDone {
		return WebhookAlreadyDone, nil
	}
	done, err := s.store.CompletePayment(ctx, p.ID, ev.Data.PaymentKey)
	if err != nil {
		return "", fmt.Errorf("payments: complete: %w", err)
	}
	if !done {
		return WebhookAlreadyDone, nil
	}
	if _, err := s.ledger.Credit(ctx, p.UserID, p.CreditsAdded, p.ID,
		fmt.Sprintf("결제 완료 (웹훅): %s원 → %s 크레딧", groupThousands(p.Amount), groupThousands(int64(p.CreditsAdded)))); err != nil {
		// Reopen so the gateway's retry can credit again.
		s.setStatus(ctx, p.ID, StatusInProgress, "")
		return "", fmt.Errorf("payments: credit: %w", err)
	}
	s.logger.Info("payment confirmed by webhook", "payment_id", p.ID, "user_id", p.UserID)
	return WebhookCredited, nil
}

func (s *Service) setStatus(ctx context.Context, id string, status Status, key string) {
	if err := s.store.SetPaymentStatus(ctx, id, status, key); err != nil {
		s.logger.Error("update payment status failed", "payment_id", id, "status", string(status), "error", err)
	}
}

func newOrderID(now time.Time) string {
	return fmt.Sprintf("ORDER_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// groupThousands formats n with comma separators, e.g. 10000 -> "10,000".
func groupThousands(n int64) string {
	s := fmt.Sprint(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
