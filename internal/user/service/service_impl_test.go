package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	auditrepository "github.com/citeflex/citeledger/internal/audit/repository"
	auditservice "github.com/citeflex/citeledger/internal/audit/service"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/config"
	"github.com/citeflex/citeledger/internal/user/domain"
	"github.com/citeflex/citeledger/pkg/db"
)

func setupUserTest(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.User{}, &auditdomain.AuditRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	cfg := config.Load()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:     dbConn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Config: cfg,
		Repo:   auditrepository.Provide(),
	})
	svc := NewService(Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		AuditSvc: auditSvc,
	})
	return dbConn, svc
}

func TestCreateNormalizesInput(t *testing.T) {
	_, svc := setupUserTest(t)

	user, err := svc.Create(context.Background(), domain.CreateRequest{
		Email: "  Editor@Example.COM ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Email != "editor@example.com" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if user.Tier != domain.TierFree {
		t.Fatalf("expected free tier default, got %s", user.Tier)
	}
	if user.Status != domain.StatusActive {
		t.Fatalf("expected active status, got %s", user.Status)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	_, svc := setupUserTest(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateRequest{Email: "not-an-email"}); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateRequest{Email: "a@b.com", Tier: "platinum"}); !errors.Is(err, domain.ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	_, svc := setupUserTest(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateRequest{Email: "dup@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateRequest{Email: "DUP@example.com"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestTombstoneHidesUser(t *testing.T) {
	dbConn, svc := setupUserTest(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, domain.CreateRequest{Email: "gone@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Tombstone(ctx, user.ID); err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	if _, err := svc.GetByID(ctx, user.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected tombstoned user to be invisible, got %v", err)
	}

	// The row itself survives for ledger integrity.
	var kept domain.User
	if err := dbConn.First(&kept, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("expected row to remain: %v", err)
	}
	if kept.Status != domain.StatusTombstoned || kept.TombstonedAt == nil {
		t.Fatalf("unexpected tombstoned row: %+v", kept)
	}

	var audited int64
	if err := dbConn.Model(&auditdomain.AuditRecord{}).
		Where("action = ?", auditdomain.ActionUserTombstone).
		Count(&audited).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if audited != 1 {
		t.Fatalf("expected 1 tombstone audit record, got %d", audited)
	}
}

func TestTombstoneTwice(t *testing.T) {
	_, svc := setupUserTest(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, domain.CreateRequest{Email: "twice@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Tombstone(ctx, user.ID); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if err := svc.Tombstone(ctx, user.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected second tombstone to report not found, got %v", err)
	}
}
