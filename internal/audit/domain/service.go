package domain

import (
	"context"
	"errors"
	"time"
)

// RecordRequest describes one auditable action.
type RecordRequest struct {
	Action       string
	ResourceType string
	ResourceID   string
	Outcome      Outcome
	Severity     Severity
	Actor        string
	DurationMS   *int64
	Details      map[string]any
	RequestID    string
}

type ListRequest struct {
	Category Category
	Action   string
	Outcome  Outcome
	StartAt  *time.Time
	EndAt    *time.Time
	Limit    int
}

type Service interface {
	// Record appends one audit record. It fails only on invalid enum values.
	Record(ctx context.Context, req RecordRequest) (*AuditRecord, error)
	List(ctx context.Context, req ListRequest) ([]AuditRecord, error)
	// PurgeOlderThan removes records of a category created before cutoff.
	// A cutoff inside the category's retention window is refused.
	PurgeOlderThan(ctx context.Context, category Category, cutoff time.Time) (int64, error)
	// SweepExpired purges every category up to its retention boundary.
	SweepExpired(ctx context.Context) error
}

var (
	ErrInvalidAction      = errors.New("invalid_action")
	ErrInvalidOutcome     = errors.New("invalid_outcome")
	ErrInvalidSeverity    = errors.New("invalid_severity")
	ErrInvalidCategory    = errors.New("invalid_category")
	ErrImmutableRecord    = errors.New("audit_record_immutable")
	ErrRetentionViolation = errors.New("retention_violation")
)
