// Package credits is the credit ledger: balances, debits for usage, top-ups
// from payments and the transaction history.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Cost constants.
const (
	// UserMessageCost is charged for every text chat message a user sends.
	UserMessageCost = 0.5

	inputTokenUnits  = 2 // 0.0002 credits
	outputTokenUnits = 8 // 0.0008 credits
)

var (
	// ErrInsufficientCredits is returned when a debit exceeds the balance.
	ErrInsufficientCredits = errors.New("credits: insufficient credits")

	// ErrUserNotFound is returned for unknown users.
	ErrUserNotFound = errors.New("credits: user not found")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("credits: amount must be positive")

	// ErrSkip is returned by a Guard to leave the balance untouched without
	// failing.
	ErrSkip = errors.New("credits: skip")
)

// Type is a transaction type.
type Type string

const (
	TypeUserMessage Type = "user_message"
	TypeAIResponse  Type = "ai_response"
	TypeRealtime    Type = "realtime"
	TypePayment     Type = "payment"
)

// Account is a user's balance.
type Account struct {
	UserID    string  `json:"user_id"`
	Balance   float64 `json:"credits"`
	Unmetered bool    `json:"is_super_user"`
}

// Transaction is one ledger entry. Debits have a negative Amount.
type Transaction struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	PaymentID       string    `json:"payment_id,omitempty"`
	Amount          float64   `json:"amount"`
	Type            Type      `json:"type"`
	MessageCount    *int      `json:"message_count"`
	DurationSeconds *int      `json:"duration_seconds"`
	TokensUsed      *int      `json:"tokens_used"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}

// Guard inspects the freshly read account inside the store transaction.
// Returning an error aborts without changes; ErrSkip aborts without error.
type Guard func(Account) error

// Store persists accounts and transactions.
type Store interface {
	// ApplyTransaction reads the account, runs guard, adds tx.Amount to the
	// balance and records tx, all atomically. It returns the account after
	// the change, or unchanged when guard returned ErrSkip.
	ApplyTransaction(ctx context.Context, tx Transaction, guard Guard) (Account, error)

	// Account returns ErrUserNotFound for unknown users.
	Account(ctx context.Context, userID string) (Account, error)

	// Transactions returns newest first, with the total count.
	Transactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, int, error)
}

// UsageCost converts model token usage into credits: the token price
// (0.0002 per input token, 0.0008 per output token) doubled and rounded up,
// split 30/70 between input and output with floors of 0.3 and 0.7. Every
// response costs at least one credit.
func UsageCost(inputTokens, outputTokens int) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	// Integer math in units of 1/10000 credit keeps the rounding exact.
	units := int64(inputTokens)*inputTokenUnits + int64(outputTokens)*outputTokenUnits
	credits := (2*units + 9999) / 10000
	// max(0.3, 0.3c) + max(0.7, 0.7c) is exactly max(1, c).
	return float64(max(1, credits))
}

// Options describes a debit.
type Options struct {
	ConversationID  string
	Type            Type
	MessageCount    *int
	DurationSeconds *int
	TokensUsed      *int
	Description     string
}

// Result is the outcome of a debit or credit.
type Result struct {
	NewBalance float64 `json:"newBalance"`
	Applied    float64 `json:"deducted"`
	Unmetered  bool    `json:"isSuperUser,omitempty"`
}

// InsufficientError carries the balance and the required amount.
type InsufficientError struct {
	Balance  float64
	Required float64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("credits: insufficient credits: balance %.1f, required %.1f", e.Balance, e.Required)
}

func (e *InsufficientError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// Ledger applies debits and credits.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger returns a ledger over store.
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// Debit charges amount to the user. Unmetered users are never charged. The
// balance never goes negative: the check and the update happen in one store
// transaction.
func (l *Ledger) Debit(ctx context.Context, userID string, amount float64, opts Options) (Result, error) {
	if amount <= 0 || math.IsNaN(amount) {
		return Result{}, ErrInvalidAmount
	}
	if opts.Type == "" {
		opts.Type = TypeUserMessage
	}
	desc := opts.Description
	if desc == "" {
		desc = fmt.Sprintf("%s: %g 크레딧 차감", opts.Type, amount)
	}

	unmetered := false
	acc, err := l.store.ApplyTransaction(ctx, Transaction{
		UserID:          userID,
		ConversationID:  opts.ConversationID,
		Amount:          -amount,
		Type:            opts.Type,
		MessageCount:    opts.MessageCount,
		DurationSeconds: opts.DurationSeconds,
		TokensUsed:      opts.TokensUsed,
		Description:     desc,
		CreatedAt:       l.now(),
	}, func(a Account) error {
		if a.Unmetered {
			unmetered = true
			return ErrSkip
		}
		if a.Balance < amount {
			return &InsufficientError{Balance: a.Balance, Required: amount}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if unmetered {
		l.logger.Debug("unmetered user, not charged", "user_id", userID, "amount", amount)
		return Result{NewBalance: acc.Balance, Unmetered: true}, nil
	}
	l.logger.Info("credits debited", "user_id", userID, "amount", amount, "type", string(opts.Type), "balance", acc.Balance)
	return Result{NewBalance: acc.Balance, Applied: amount}, nil
}

// Credit adds amount to the user's balance as a payment top-up.
func (l *Ledger) Credit(ctx context.Context, userID string, amount float64, paymentID, description string) (Result, error) {
	if amount <= 0 || math.IsNaN(amount) {
		return Result{}, ErrInvalidAmount
	}
	if description == "" {
		description = fmt.Sprintf("결제: %g 크레딧 충전", amount)
	}
	acc, err := l.store.ApplyTransaction(ctx, Transaction{
		UserID:      userID,
		PaymentID:   paymentID,
		Amount:      amount,
		Type:        TypePayment,
		Description: description,
		CreatedAt:   l.now(),
	}, nil)
	if err != nil {
		return Result{}, err
	}
	l.logger.Info("credits added", "user_id", userID, "amount", amount, "balance", acc.Balance)
	return Result{NewBalance: acc.Balance, Applied: amount}, nil
}

// Balance returns the user's account.
func (l *Ledger) Balance(ctx context.Context, userID string) (Account, error) {
	return l.store.Account(ctx, userID)
}

// CanStart reports whether the user may start a paid session: unmetered
// users always can, others need a positive balance.
func (l *Ledger) CanStart(ctx context.Context, userID string) (Account, bool, error) {
	acc, err := l.store.Account(ctx, userID)
	if err != nil {
		return Account{}, false, err
	}
	return acc, acc.Unmetered || acc.Balance > 0, nil
}

// History returns the user's transactions, newest first. limit defaults to
// 50.
func (l *Ledger) History(ctx context.Context, userID string, limit, offset int) ([]Transaction, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.Transactions(ctx, userID, limit, offset)
}
