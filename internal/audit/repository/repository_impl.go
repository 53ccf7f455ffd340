package repository

import (
	"context"
	"strings"
	"time"

	"github.com/citeflex/citeledger/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.AuditRecord) error {
	if record == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_records (
			id, request_id, category, action, resource_type, resource_id,
			outcome, severity, actor_hash, duration_ms, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.RequestID,
		record.Category,
		record.Action,
		record.ResourceType,
		record.ResourceID,
		record.Outcome,
		record.Severity,
		record.ActorHash,
		record.DurationMS,
		record.Details,
		record.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.AuditRecord, error) {
	var records []domain.AuditRecord
	stmt := db.WithContext(ctx).Model(&domain.AuditRecord{})

	if req.Category != "" {
		stmt = stmt.Where("category = ?", req.Category)
	}
	if action := strings.TrimSpace(req.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if req.Outcome != "" {
		stmt = stmt.Where("outcome = ?", req.Outcome)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		stmt = stmt.Where("created_at < ?", req.EndAt.UTC())
	}

	stmt = stmt.Order("created_at desc, id desc")
	if req.Limit > 0 {
		stmt = stmt.Limit(req.Limit)
	}

	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) DeleteOlderThan(ctx context.Context, db *gorm.DB, category domain.Category, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM audit_records WHERE category = ? AND created_at < ?`,
		category,
		cutoff.UTC(),
	)
	return result.RowsAffected, result.Error
}
