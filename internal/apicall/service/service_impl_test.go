package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/citeflex/citeledger/internal/apicall/domain"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	auditrepository "github.com/citeflex/citeledger/internal/audit/repository"
	auditservice "github.com/citeflex/citeledger/internal/audit/service"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/config"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
	"github.com/citeflex/citeledger/pkg/db"
)

func setupCallTest(t *testing.T) (*gorm.DB, domain.Service, snowflake.ID) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&userdomain.User{},
		&sessiondomain.DocumentSession{},
		&domain.APICallEvent{},
		&auditdomain.AuditRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
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
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Audit: auditSvc,
	})

	userID := node.Generate()
	if err := dbConn.Create(&userdomain.User{
		ID:        userID,
		Email:     "calls@example.com",
		Tier:      userdomain.TierStandard,
		Status:    userdomain.StatusActive,
		CreatedAt: fake.Now(),
		UpdatedAt: fake.Now(),
	}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	sessID := node.Generate()
	if err := dbConn.Create(&sessiondomain.DocumentSession{
		ID:         sessID,
		SessionKey: "calls-session",
		UserID:     userID,
		Filename:   "calls.docx",
		Status:     sessiondomain.StatusProcessing,
		StartedAt:  fake.Now(),
	}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	return dbConn, svc, sessID
}

func TestLogCallAccumulatesSessionCost(t *testing.T) {
	dbConn, svc, sessID := setupCallTest(t)
	ctx := context.Background()

	first, err := svc.LogCall(ctx, domain.CallEvent{
		SessionID:    &sessID,
		Provider:     domain.ProviderGemini,
		SourceType:   domain.SourceDOI,
		CitationType: domain.CitationJournal,
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		Success:      true,
	})
	if err != nil {
		t.Fatalf("log call: %v", err)
	}
	if first.CostUSD != 0.375 {
		t.Fatalf("expected cost 0.375, got %v", first.CostUSD)
	}

	second, err := svc.LogCall(ctx, domain.CallEvent{
		SessionID:    &sessID,
		Provider:     domain.ProviderSerpapi,
		SourceType:   domain.SourceURL,
		CitationType: domain.CitationURL,
		SearchCount:  2,
		Success:      true,
	})
	if err != nil {
		t.Fatalf("log call: %v", err)
	}
	if second.CostUSD != 0.02 {
		t.Fatalf("expected cost 0.02, got %v", second.CostUSD)
	}

	var sess sessiondomain.DocumentSession
	if err := dbConn.First(&sess, "id = ?", sessID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.APICalls != 2 {
		t.Fatalf("expected 2 api calls, got %d", sess.APICalls)
	}
	if math.Abs(sess.TotalCostUSD-0.395) > 1e-9 {
		t.Fatalf("expected session cost 0.395, got %v", sess.TotalCostUSD)
	}

	calls, err := svc.ListBySession(ctx, sessID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 call rows, got %d", len(calls))
	}
}

func TestLogCallHonorsReportedCost(t *testing.T) {
	_, svc, sessID := setupCallTest(t)
	ctx := context.Background()

	reported := 0.123456789
	confidence := 0.92
	call, err := svc.LogCall(ctx, domain.CallEvent{
		SessionID:    &sessID,
		Provider:     domain.ProviderGemini,
		Endpoint:     "/v1/models/gemini:generateContent",
		SourceType:   domain.SourceDOI,
		CitationType: domain.CitationJournal,
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		CostUSD:      &reported,
		Confidence:   &confidence,
		Success:      true,
		Metadata:     map[string]any{"model": "gemini-2.0-flash"},
	})
	if err != nil {
		t.Fatalf("log call: %v", err)
	}

	// The reported spend wins over the rate table, rounded to 8 decimals.
	if call.CostUSD != 0.12345679 {
		t.Fatalf("expected reported cost 0.12345679, got %v", call.CostUSD)
	}

	calls, err := svc.ListBySession(ctx, sessID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call row, got %d", len(calls))
	}
	got := calls[0]
	if got.Endpoint != "/v1/models/gemini:generateContent" {
		t.Fatalf("expected endpoint to survive, got %s", got.Endpoint)
	}
	if got.Confidence == nil || *got.Confidence != 0.92 {
		t.Fatalf("expected confidence 0.92, got %v", got.Confidence)
	}
	if got.Metadata["model"] != "gemini-2.0-flash" {
		t.Fatalf("expected metadata to survive, got %v", got.Metadata)
	}
}

func TestLogCallRejectsNegativeReportedCost(t *testing.T) {
	_, svc, sessID := setupCallTest(t)

	bad := -0.01
	_, err := svc.LogCall(context.Background(), domain.CallEvent{
		SessionID:    &sessID,
		Provider:     domain.ProviderGemini,
		SourceType:   domain.SourceDOI,
		CitationType: domain.CitationJournal,
		CostUSD:      &bad,
	})
	if !errors.Is(err, domain.ErrInvalidCost) {
		t.Fatalf("expected ErrInvalidCost, got %v", err)
	}
}

func TestLogStandaloneCall(t *testing.T) {
	dbConn, svc, sessID := setupCallTest(t)
	ctx := context.Background()

	call, err := svc.LogCall(ctx, domain.CallEvent{
		Provider:     domain.ProviderCrossref,
		SourceType:   domain.SourceDOI,
		CitationType: domain.CitationJournal,
		Success:      true,
	})
	if err != nil {
		t.Fatalf("log standalone call: %v", err)
	}
	if call.SessionID != nil {
		t.Fatalf("expected no session on standalone call, got %v", call.SessionID)
	}

	var stored domain.APICallEvent
	if err := dbConn.First(&stored, "id = ?", call.ID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if stored.SessionID != nil {
		t.Fatalf("expected null session_id, got %v", stored.SessionID)
	}

	// Spend outside a processing run must not touch any session counters.
	var sess sessiondomain.DocumentSession
	if err := dbConn.First(&sess, "id = ?", sessID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.APICalls != 0 || sess.TotalCostUSD != 0 {
		t.Fatalf("expected untouched session counters, got %d/%v", sess.APICalls, sess.TotalCostUSD)
	}
}

func TestLogCallRejectsInvalidProvider(t *testing.T) {
	dbConn, svc, sessID := setupCallTest(t)

	_, err := svc.LogCall(context.Background(), domain.CallEvent{
		SessionID:    &sessID,
		Provider:     "skynet",
		SourceType:   domain.SourceDOI,
		CitationType: domain.CitationJournal,
	})
	if !errors.Is(err, domain.ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}

	var events int64
	if err := dbConn.Model(&domain.APICallEvent{}).Count(&events).Error; err != nil {
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
	if rejected != 1 {
		t.Fatalf("expected 1 rejection audit record, got %d", rejected)
	}
}

func TestLogCallRejectsNegativeTokens(t *testing.T) {
	_, svc, sessID := setupCallTest(t)

	_, err := svc.LogCall(context.Background(), domain.CallEvent{
		SessionID:    &sessID,
		Provider:     domain.ProviderOpenAI,
		SourceType:   domain.SourceDOI,
		CitationType: domain.CitationJournal,
		InputTokens:  -1,
	})
	if !errors.Is(err, domain.ErrInvalidTokens) {
		t.Fatalf("expected ErrInvalidTokens, got %v", err)
	}
}

func TestLogCallUnknownSession(t *testing.T) {
	_, svc, _ := setupCallTest(t)

	node, _ := snowflake.NewNode(2)
	ghost := node.Generate()
	_, err := svc.LogCall(context.Background(), domain.CallEvent{
		SessionID:    &ghost,
		Provider:     domain.ProviderOpenAI,
		SourceType:   domain.SourceDOI,
		CitationType: domain.CitationJournal,
	})
	if !errors.Is(err, domain.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}
