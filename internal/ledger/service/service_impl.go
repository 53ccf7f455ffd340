package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/config"
	"github.com/citeflex/citeledger/internal/ledger/domain"
	"github.com/citeflex/citeledger/internal/observability/metrics"
	"github.com/citeflex/citeledger/pkg/db"
)

// maxConflictRetries bounds the optimistic write loop before the
// caller is told to retry.
const maxConflictRetries = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Audit      auditdomain.Service
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type ledgerService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &ledgerService{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		audit:   p.Audit,
		metrics: p.ObsMetrics,
	}
}

func (s *ledgerService) Debit(ctx context.Context, req domain.ChargeRequest) (*domain.CreditTransaction, error) {
	req.Kind = domain.KindSpend
	return s.apply(ctx, req)
}

func (s *ledgerService) Credit(ctx context.Context, req domain.ChargeRequest) (*domain.CreditTransaction, error) {
	if req.Kind == domain.KindSpend || !req.Kind.Valid() {
		s.recordRejected(ctx, req, domain.ErrInvalidKind)
		return nil, domain.ErrInvalidKind
	}
	if req.Kind == domain.KindRefund && req.DocumentSessionID == nil {
		s.recordRejected(ctx, req, domain.ErrRefundWithoutSession)
		return nil, domain.ErrRefundWithoutSession
	}
	return s.apply(ctx, req)
}

func (s *ledgerService) apply(ctx context.Context, req domain.ChargeRequest) (*domain.CreditTransaction, error) {
	if req.UserID == 0 {
		s.recordRejected(ctx, req, domain.ErrInvalidUser)
		return nil, domain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		s.recordRejected(ctx, req, domain.ErrInvalidAmount)
		return nil, domain.ErrInvalidAmount
	}

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		txn, balance, err := s.attempt(ctx, req)
		if err == nil {
			s.recordSuccess(ctx, req, txn)
			return txn, nil
		}
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.recordDenied(ctx, req, balance)
			return nil, err
		}
		if errors.Is(err, domain.ErrConflictRetryable) || db.IsDuplicateKeyErr(err) {
			lastErr = domain.ErrConflictRetryable
			continue
		}
		if errors.Is(err, domain.ErrInvalidUser) {
			s.recordRejected(ctx, req, err)
		}
		return nil, err
	}
	s.log.Warn("ledger write exhausted retries",
		zap.String("user_id", req.UserID.String()),
		zap.String("kind", string(req.Kind)))
	return nil, lastErr
}

// attempt performs one guarded write. The cached balance acts as the
// compare-and-swap token: a concurrent writer changes it, the guarded
// UPDATE matches zero rows, and the whole transaction rolls back.
func (s *ledgerService) attempt(ctx context.Context, req domain.ChargeRequest) (*domain.CreditTransaction, int64, error) {
	signed := req.Amount * req.Kind.Sign()
	txn := &domain.CreditTransaction{
		ID:                s.genID.Generate(),
		UserID:            req.UserID,
		Amount:            signed,
		Kind:              req.Kind,
		DocumentSessionID: req.DocumentSessionID,
		Description:       req.Description,
		CreatedAt:         s.clock.Now(),
	}

	var seenBalance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user struct {
			CreditsBalance int64
			Status         string
		}
		if err := tx.Raw(`
			SELECT credits_balance, status
			FROM users
			WHERE id = ?
		`, req.UserID).Scan(&user).Error; err != nil {
			return err
		}
		if user.Status == "" {
			return domain.ErrInvalidUser
		}
		seenBalance = user.CreditsBalance

		// One spend per processing run; a retried charge request must
		// not debit the user twice.
		if req.Kind == domain.KindSpend && req.DocumentSessionID != nil {
			var charged int64
			if err := tx.Raw(`
				SELECT COUNT(*)
				FROM credit_transactions
				WHERE document_session_id = ? AND kind = ?
			`, *req.DocumentSessionID, domain.KindSpend).Scan(&charged).Error; err != nil {
				return err
			}
			if charged > 0 {
				return domain.ErrSessionCharged
			}
		}

		newBalance := user.CreditsBalance + signed
		if newBalance < 0 {
			return domain.ErrInsufficientBalance
		}

		var lastSeq int64
		if err := tx.Raw(`
			SELECT COALESCE(MAX(seq), 0)
			FROM credit_transactions
			WHERE user_id = ?
		`, req.UserID).Scan(&lastSeq).Error; err != nil {
			return err
		}
		txn.Seq = lastSeq + 1
		txn.BalanceAfter = newBalance

		res := tx.Exec(`
			UPDATE users
			SET credits_balance = ?, updated_at = ?
			WHERE id = ? AND credits_balance = ?
		`, newBalance, s.clock.Now(), req.UserID, user.CreditsBalance)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConflictRetryable
		}

		return tx.Exec(`
			INSERT INTO credit_transactions
				(id, user_id, seq, amount, balance_after, kind, document_session_id, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, txn.ID, txn.UserID, txn.Seq, txn.Amount, txn.BalanceAfter,
			txn.Kind, txn.DocumentSessionID, txn.Description, txn.CreatedAt).Error
	})
	if err != nil {
		return nil, seenBalance, err
	}
	return txn, seenBalance, nil
}

func (s *ledgerService) Balance(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	var balance int64
	err := s.db.WithContext(ctx).Raw(`
		SELECT credits_balance FROM users WHERE id = ?
	`, userID).Scan(&balance).Error
	return balance, err
}

// ReplayBalance recomputes the balance from the ledger alone. It must
// agree with the cached balance; a mismatch means the ledger invariant
// was broken outside this service.
func (s *ledgerService) ReplayBalance(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	var total int64
	err := s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_transactions
		WHERE user_id = ?
	`, userID).Scan(&total).Error
	return total, err
}

func (s *ledgerService) History(ctx context.Context, userID snowflake.ID, limit int) ([]domain.CreditTransaction, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var txns []domain.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// CreditsForCost converts a USD cost into whole credits, rounding up
// so fractional cents are never given away.
func (s *ledgerService) CreditsForCost(costUSD float64) int64 {
	if costUSD <= 0 {
		return 0
	}
	return int64(math.Ceil(costUSD * float64(s.cfg.CreditsPerUSD)))
}

func (s *ledgerService) recordSuccess(ctx context.Context, req domain.ChargeRequest, txn *domain.CreditTransaction) {
	if s.metrics != nil {
		s.metrics.RecordLedgerTransaction(string(req.Kind), "success")
	}
	if _, err := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       actionForKind(req.Kind),
		Actor:        req.Actor,
		ResourceType: "credit_transaction",
		ResourceID:   txn.ID.String(),
		Outcome:      auditdomain.OutcomeSuccess,
		Details: map[string]any{
			"user_id":       req.UserID.String(),
			"amount":        txn.Amount,
			"balance_after": txn.BalanceAfter,
		},
	}); err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
}

// recordRejected writes the denied audit record for a charge that never
// made it past validation.
func (s *ledgerService) recordRejected(ctx context.Context, req domain.ChargeRequest, reason error) {
	if s.metrics != nil {
		s.metrics.RecordLedgerTransaction(string(req.Kind), "rejected")
	}
	if _, err := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       auditdomain.ActionEventRejected,
		Actor:        req.Actor,
		ResourceType: "credit_transaction",
		ResourceID:   req.UserID.String(),
		Outcome:      auditdomain.OutcomeDenied,
		Details: map[string]any{
			"kind":   string(req.Kind),
			"amount": req.Amount,
			"reason": reason.Error(),
		},
	}); err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
}

func (s *ledgerService) recordDenied(ctx context.Context, req domain.ChargeRequest, balance int64) {
	if s.metrics != nil {
		s.metrics.RecordLedgerTransaction(string(req.Kind), "denied")
	}
	if _, err := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       actionForKind(req.Kind),
		Actor:        req.Actor,
		ResourceType: "user",
		ResourceID:   req.UserID.String(),
		Outcome:      auditdomain.OutcomeDenied,
		Severity:     auditdomain.SeverityMedium,
		Details: map[string]any{
			"requested": req.Amount,
			"balance":   balance,
			"reason":    "insufficient_balance",
		},
	}); err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
}

func actionForKind(k domain.Kind) string {
	switch k {
	case domain.KindPurchase:
		return auditdomain.ActionCreditPurchase
	case domain.KindSpend:
		return auditdomain.ActionCreditSpend
	case domain.KindRefund:
		return auditdomain.ActionCreditRefund
	case domain.KindBonus:
		return auditdomain.ActionCreditBonus
	}
	return fmt.Sprintf("billing.credit_%s", k)
}
