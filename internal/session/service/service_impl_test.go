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
	"github.com/citeflex/citeledger/internal/session/domain"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
	userservice "github.com/citeflex/citeledger/internal/user/service"
	"github.com/citeflex/citeledger/pkg/db"
)

func setupSessionTest(t *testing.T) (*gorm.DB, domain.Service, *clock.FakeClock, snowflake.ID) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&userdomain.User{},
		&domain.DocumentSession{},
		&auditdomain.AuditRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := config.Load()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:     dbConn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Config: cfg,
		Repo:   auditrepository.Provide(),
	})
	userSvc := userservice.NewService(userservice.Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		AuditSvc: auditSvc,
	})
	svc := NewService(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Audit: auditSvc,
		Users: userSvc,
	})

	user, err := userSvc.Create(context.Background(), userdomain.CreateRequest{
		Email: "sessions@example.com",
		Tier:  userdomain.TierFree,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	return dbConn, svc, fake, user.ID
}

func TestSessionLifecycle(t *testing.T) {
	_, svc, fake, userID := setupSessionTest(t)
	ctx := context.Background()

	sess, err := svc.Start(ctx, domain.StartRequest{UserID: userID, Filename: "thesis.docx"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Status != domain.StatusProcessing {
		t.Fatalf("expected status processing, got %s", sess.Status)
	}
	if sess.SessionKey == "" {
		t.Fatal("expected a generated session key")
	}

	fake.Advance(90 * time.Second)

	done, err := svc.Finish(ctx, sess.ID, domain.FinishRequest{Status: domain.StatusCompleted})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %s", done.Status)
	}
	if done.ProcessingTimeMS == nil || *done.ProcessingTimeMS != 90000 {
		t.Fatalf("expected processing time 90000ms, got %v", done.ProcessingTimeMS)
	}
	if done.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
}

func TestStartPersistsUploadMetadata(t *testing.T) {
	_, svc, _, userID := setupSessionTest(t)
	ctx := context.Background()

	sess, err := svc.Start(ctx, domain.StartRequest{
		UserID:         userID,
		SessionKey:     "upload-42",
		Filename:       "dissertation.docx",
		FileSizeBytes:  240_000,
		CitationStyle:  "apa",
		ProcessingMode: "full",
		IsPreview:      true,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionKey != "upload-42" {
		t.Fatalf("expected session key upload-42, got %s", got.SessionKey)
	}
	if got.Filename != "dissertation.docx" || got.FileSizeBytes != 240_000 {
		t.Fatalf("expected upload metadata to survive, got %s/%d", got.Filename, got.FileSizeBytes)
	}
	if got.CitationStyle != "apa" || got.ProcessingMode != "full" || !got.IsPreview {
		t.Fatalf("expected processing options to survive, got %s/%s/%v", got.CitationStyle, got.ProcessingMode, got.IsPreview)
	}
}

func TestStartRejectsDuplicateSessionKey(t *testing.T) {
	_, svc, _, userID := setupSessionTest(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, domain.StartRequest{UserID: userID, SessionKey: "upload-7", Filename: "a.docx"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := svc.Start(ctx, domain.StartRequest{UserID: userID, SessionKey: "upload-7", Filename: "b.docx"})
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestFinishIsOneShot(t *testing.T) {
	_, svc, _, userID := setupSessionTest(t)
	ctx := context.Background()

	sess, err := svc.Start(ctx, domain.StartRequest{UserID: userID, Filename: "paper.docx"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Finish(ctx, sess.ID, domain.FinishRequest{Status: domain.StatusFailed, ErrorMessage: "parser crashed"}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	_, err = svc.Finish(ctx, sess.ID, domain.FinishRequest{Status: domain.StatusCompleted})
	if !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}

	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected status to remain failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "parser crashed" {
		t.Fatalf("expected error message to survive, got %v", got.ErrorMessage)
	}
}

func TestFinishRejectsNonTerminalStatus(t *testing.T) {
	_, svc, _, userID := setupSessionTest(t)
	ctx := context.Background()

	sess, err := svc.Start(ctx, domain.StartRequest{UserID: userID, Filename: "notes.docx"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Finish(ctx, sess.ID, domain.FinishRequest{Status: domain.StatusProcessing}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestFoldResolutionsAfterFinalize(t *testing.T) {
	_, svc, _, userID := setupSessionTest(t)
	ctx := context.Background()

	sess, err := svc.Start(ctx, domain.StartRequest{UserID: userID, Filename: "report.docx"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.SuccessRate != nil {
		t.Fatalf("expected nil success rate with no citations, got %v", *sess.SuccessRate)
	}
	if _, err := svc.Finish(ctx, sess.ID, domain.FinishRequest{Status: domain.StatusCompleted}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Decisions keep arriving after the processing run ends.
	updated, err := svc.FoldResolutions(ctx, sess.ID, domain.ResolutionDelta{
		AcceptedOriginal: 1,
		MinorEdits:       1,
		UserProvided:     1,
	})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if updated.TotalCitations != 3 {
		t.Fatalf("expected 3 citations, got %d", updated.TotalCitations)
	}
	if updated.CitationsResolved != 2 || updated.CitationsFailed != 1 {
		t.Fatalf("expected 2 resolved and 1 failed, got %d/%d", updated.CitationsResolved, updated.CitationsFailed)
	}
	if updated.SuccessRate == nil || *updated.SuccessRate != 66.67 {
		t.Fatalf("expected success rate 66.67, got %v", updated.SuccessRate)
	}
}

func TestStartRejectsUnknownUser(t *testing.T) {
	_, svc, _, _ := setupSessionTest(t)

	node, _ := snowflake.NewNode(2)
	_, err := svc.Start(context.Background(), domain.StartRequest{UserID: node.Generate(), Filename: "ghost.docx"})
	if !errors.Is(err, domain.ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestSweepStaleFailsAbandonedRuns(t *testing.T) {
	_, svc, fake, userID := setupSessionTest(t)
	ctx := context.Background()

	stale, err := svc.Start(ctx, domain.StartRequest{UserID: userID, Filename: "abandoned.docx"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fake.Advance(25 * time.Hour)

	fresh, err := svc.Start(ctx, domain.StartRequest{UserID: userID, Filename: "active.docx"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	swept, err := svc.SweepStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept session, got %d", swept)
	}

	got, err := svc.Get(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected stale session to be failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "processing timed out" {
		t.Fatalf("expected timeout error message, got %v", got.ErrorMessage)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finished_at to be stamped")
	}

	untouched, err := svc.Get(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if untouched.Status != domain.StatusProcessing {
		t.Fatalf("expected fresh session to keep processing, got %s", untouched.Status)
	}
}
