package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidKind          = errors.New("invalid_kind")
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrRefundWithoutSession = errors.New("refund_without_session")
	ErrSessionCharged       = errors.New("session_already_charged")
	ErrConflictRetryable    = errors.New("conflict_retryable")
	ErrImmutableTransaction = errors.New("ledger_entry_immutable")
)

// ChargeRequest describes a single balance-affecting event.
type ChargeRequest struct {
	UserID            snowflake.ID
	Amount            int64 // always positive; Kind determines the sign
	Kind              Kind
	DocumentSessionID *snowflake.ID
	Description       string
	Actor             string
}

// Service is the credit ledger. All writes are serialized per user; a
// debit that would take the balance negative is refused without writing.
type Service interface {
	Debit(ctx context.Context, req ChargeRequest) (*CreditTransaction, error)
	Credit(ctx context.Context, req ChargeRequest) (*CreditTransaction, error)
	Balance(ctx context.Context, userID snowflake.ID) (int64, error)
	ReplayBalance(ctx context.Context, userID snowflake.ID) (int64, error)
	History(ctx context.Context, userID snowflake.ID, limit int) ([]CreditTransaction, error)
	CreditsForCost(costUSD float64) int64
}
