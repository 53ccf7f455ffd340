package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *AuditRecord) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]AuditRecord, error)
	DeleteOlderThan(ctx context.Context, db *gorm.DB, category Category, cutoff time.Time) (int64, error)
}
