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
	"github.com/citeflex/citeledger/internal/resolution/domain"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
	sessionservice "github.com/citeflex/citeledger/internal/session/service"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
	userservice "github.com/citeflex/citeledger/internal/user/service"
	"github.com/citeflex/citeledger/pkg/db"
)

func setupResolutionTest(t *testing.T) (*gorm.DB, domain.Service, sessiondomain.Service, snowflake.ID) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&userdomain.User{},
		&sessiondomain.DocumentSession{},
		&domain.ResolutionEvent{},
		&auditdomain.AuditRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
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
	sessionSvc := sessionservice.NewService(sessionservice.Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Audit: auditSvc,
		Users: userSvc,
	})
	svc := NewService(Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Config:   cfg,
		Audit:    auditSvc,
		Sessions: sessionSvc,
	})

	user, err := userSvc.Create(context.Background(), userdomain.CreateRequest{
		Email: "resolutions@example.com",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := sessionSvc.Start(context.Background(), sessiondomain.StartRequest{UserID: user.ID, Filename: "chapter.docx"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	return dbConn, svc, sessionSvc, sess.ID
}

func TestLogDecisionScenario(t *testing.T) {
	dbConn, svc, sessionSvc, sessID := setupResolutionTest(t)
	ctx := context.Background()

	decisions := []struct {
		similarity float64
		wantTier   domain.Tier
	}{
		{0.97, domain.TierAcceptedOriginal},
		{0.85, domain.TierMinorEdit},
		{0.5, domain.TierUserProvided},
	}
	for i, d := range decisions {
		ev, err := svc.LogDecision(ctx, domain.Decision{
			SessionID:    sessID,
			CitationID:   "cite-" + string(rune('a'+i)),
			Similarity:   d.similarity,
			SourceEngine: "crossref",
		})
		if err != nil {
			t.Fatalf("log decision %d: %v", i, err)
		}
		if ev.Tier != d.wantTier {
			t.Fatalf("decision %d: expected tier %s, got %s", i, d.wantTier, ev.Tier)
		}
	}

	sess, err := sessionSvc.Get(ctx, sessID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.TotalCitations != 3 || sess.AcceptedOriginal != 1 || sess.MinorEdits != 1 || sess.UserProvided != 1 {
		t.Fatalf("unexpected scoreboard: %+v", sess)
	}
	if sess.SuccessRate == nil || *sess.SuccessRate != 66.67 {
		t.Fatalf("expected success rate 66.67, got %v", sess.SuccessRate)
	}

	var failures int64
	if err := dbConn.Model(&auditdomain.AuditRecord{}).
		Where("action = ? AND outcome = ?", auditdomain.ActionCitationReject, auditdomain.OutcomeFailure).
		Count(&failures).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if failures != 1 {
		t.Fatalf("expected 1 citation failure audit record, got %d", failures)
	}
}

func TestLogDecisionAlternativeWins(t *testing.T) {
	_, svc, _, sessID := setupResolutionTest(t)

	ev, err := svc.LogDecision(context.Background(), domain.Decision{
		SessionID:           sessID,
		CitationID:          "cite-alt",
		Similarity:          0.1,
		AlternativeSelected: true,
		SourceEngine:        "pubmed",
	})
	if err != nil {
		t.Fatalf("log decision: %v", err)
	}
	if ev.Tier != domain.TierAcceptedAlternative {
		t.Fatalf("expected accepted_alternative, got %s", ev.Tier)
	}
}

func TestLogDecisionKeepsCitationContext(t *testing.T) {
	dbConn, svc, _, sessID := setupResolutionTest(t)

	altIndex := int64(2)
	ev, err := svc.LogDecision(context.Background(), domain.Decision{
		SessionID:           sessID,
		CitationID:          "cite-ctx",
		Similarity:          0.2,
		AlternativeSelected: true,
		AlternativeIndex:    &altIndex,
		SourceEngine:        "crossref",
		CitationStyle:       "apa",
		CitationType:        "journal",
	})
	if err != nil {
		t.Fatalf("log decision: %v", err)
	}

	var stored domain.ResolutionEvent
	if err := dbConn.First(&stored, "id = ?", ev.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if stored.AlternativeIndex == nil || *stored.AlternativeIndex != 2 {
		t.Fatalf("expected alternative index 2, got %v", stored.AlternativeIndex)
	}
	if stored.CitationStyle != "apa" || stored.CitationType != "journal" {
		t.Fatalf("expected citation context to survive, got %s/%s", stored.CitationStyle, stored.CitationType)
	}
}

func TestLogDecisionRejectsBadSimilarity(t *testing.T) {
	dbConn, svc, _, sessID := setupResolutionTest(t)

	for _, sim := range []float64{-0.1, 1.1} {
		_, err := svc.LogDecision(context.Background(), domain.Decision{
			SessionID:  sessID,
			CitationID: "cite-bad",
			Similarity: sim,
		})
		if !errors.Is(err, domain.ErrInvalidSimilarity) {
			t.Fatalf("similarity %v: expected ErrInvalidSimilarity, got %v", sim, err)
		}
	}

	var events int64
	if err := dbConn.Model(&domain.ResolutionEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 0 {
		t.Fatalf("expected no event rows, got %d", events)
	}

	var rejected int64
	if err := dbConn.Model(&auditdomain.AuditRecord{}).
		Where("action = ? AND outcome = ?", auditdomain.ActionEventRejected, auditdomain.OutcomeDenied).
		Count(&rejected).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if rejected != 2 {
		t.Fatalf("expected 2 rejection audit records, got %d", rejected)
	}
}
