package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome is the result of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
	OutcomePartial Outcome = "partial"
	OutcomeTimeout Outcome = "timeout"
)

// Severity classifies the security relevance of a record.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category drives the retention window applied to a record.
type Category string

const (
	CategoryAudit       Category = "audit"
	CategorySecurity    Category = "security"
	CategoryApplication Category = "application"
)

// Action names follow a dotted namespace, e.g. billing.credit_spend.
const (
	ActionCreditPurchase   = "billing.credit_purchase"
	ActionCreditSpend      = "billing.credit_spend"
	ActionCreditRefund     = "billing.credit_refund"
	ActionCreditBonus      = "billing.credit_bonus"
	ActionDocumentProcess  = "document.process"
	ActionCitationAccept   = "citation.accept"
	ActionCitationReject   = "citation.reject"
	ActionUserTombstone    = "gdpr.data_delete"
	ActionSnapshotBackfill = "admin.snapshot_backfill"
	ActionSessionSweep     = "admin.session_sweep"
	ActionEventRejected    = "validation.event_rejected"
	ActionPurgeRefused     = "security.retention_purge_refused"
	ActionAdminDenied      = "auth.admin_denied"
)

// CategoryForAction maps an action namespace onto its retention category.
func CategoryForAction(action string) Category {
	prefix, _, _ := strings.Cut(action, ".")
	switch prefix {
	case "billing", "gdpr", "admin":
		return CategoryAudit
	case "security", "auth":
		return CategorySecurity
	default:
		return CategoryApplication
	}
}

// AuditRecord is an immutable compliance log entry.
type AuditRecord struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	RequestID    string            `gorm:"type:text;not null"`
	Category     Category          `gorm:"type:text;not null;index:idx_audit_category_created,priority:1"`
	Action       string            `gorm:"type:text;not null;index"`
	ResourceType string            `gorm:"type:text;not null"`
	ResourceID   *string           `gorm:"type:text"`
	Outcome      Outcome           `gorm:"type:text;not null;index"`
	Severity     Severity          `gorm:"type:text;not null"`
	ActorHash    *string           `gorm:"type:text"`
	DurationMS   *int64            `gorm:""`
	Details      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;index:idx_audit_category_created,priority:2"`
}

// TableName sets the database table name.
func (AuditRecord) TableName() string { return "audit_records" }

// BeforeUpdate rejects mutation of an existing record.
func (AuditRecord) BeforeUpdate(*gorm.DB) error { return ErrImmutableRecord }

// BeforeDelete rejects removal through the ORM; the retention sweep uses its
// own guarded path.
func (AuditRecord) BeforeDelete(*gorm.DB) error { return ErrImmutableRecord }

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeDenied, OutcomePartial, OutcomeTimeout:
		return true
	}
	return false
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func (c Category) Valid() bool {
	switch c {
	case CategoryAudit, CategorySecurity, CategoryApplication:
		return true
	}
	return false
}

// HashActor hashes an actor reference for privacy while keeping records
// correlatable; the service name salts the digest.
func HashActor(service, actor string) string {
	if actor == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(service + ":" + actor))
	return hex.EncodeToString(sum[:])[:16]
}
