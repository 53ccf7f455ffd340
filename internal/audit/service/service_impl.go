package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/config"
	obsmetrics "github.com/citeflex/citeledger/internal/observability/metrics"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       auditdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       auditdomain.Repository
	obsMetrics *obsmetrics.Metrics

	serviceName string
	retention   map[auditdomain.Category]time.Duration
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("audit.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		obsMetrics:  p.ObsMetrics,
		serviceName: p.Config.AppName,
		retention: map[auditdomain.Category]time.Duration{
			auditdomain.CategoryAudit:       p.Config.RetentionAudit,
			auditdomain.CategorySecurity:    p.Config.RetentionSecurity,
			auditdomain.CategoryApplication: p.Config.RetentionApplication,
		},
	}
}

func (s *Service) Record(ctx context.Context, req auditdomain.RecordRequest) (*auditdomain.AuditRecord, error) {
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}

	outcome := req.Outcome
	if outcome == "" {
		outcome = auditdomain.OutcomeSuccess
	}
	if !outcome.Valid() {
		return nil, auditdomain.ErrInvalidOutcome
	}

	severity := req.Severity
	if severity == "" {
		severity = auditdomain.SeverityInfo
	}
	if !severity.Valid() {
		return nil, auditdomain.ErrInvalidSeverity
	}

	resourceType := strings.TrimSpace(req.ResourceType)
	if resourceType == "" {
		resourceType = "unknown"
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	details := datatypes.JSONMap{}
	for key, value := range req.Details {
		if key == "" {
			continue
		}
		details[key] = value
	}

	record := auditdomain.AuditRecord{
		ID:           s.genID.Generate(),
		RequestID:    requestID,
		Category:     auditdomain.CategoryForAction(action),
		Action:       action,
		ResourceType: resourceType,
		Outcome:      outcome,
		Severity:     severity,
		DurationMS:   req.DurationMS,
		Details:      details,
		CreatedAt:    s.clock.Now(),
	}
	if resourceID := strings.TrimSpace(req.ResourceID); resourceID != "" {
		record.ResourceID = &resourceID
	}
	if actor := strings.TrimSpace(req.Actor); actor != "" {
		hash := auditdomain.HashActor(s.serviceName, actor)
		record.ActorHash = &hash
	}

	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		s.log.Warn("failed to write audit record", zap.String("action", action), zap.Error(err))
		return nil, err
	}
	s.obsMetrics.RecordAuditRecord(string(outcome))
	return &record, nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditRecord, error) {
	if req.Category != "" && !req.Category.Valid() {
		return nil, auditdomain.ErrInvalidCategory
	}
	if req.Outcome != "" && !req.Outcome.Valid() {
		return nil, auditdomain.ErrInvalidOutcome
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}
	return s.repo.List(ctx, s.db, req)
}

// PurgeOlderThan removes records of one category created before cutoff. The
// cutoff may never reach inside the category's mandated retention window; a
// violating request is refused and itself audited at high severity.
func (s *Service) PurgeOlderThan(ctx context.Context, category auditdomain.Category, cutoff time.Time) (int64, error) {
	if !category.Valid() {
		return 0, auditdomain.ErrInvalidCategory
	}

	window, ok := s.retention[category]
	if !ok {
		return 0, auditdomain.ErrInvalidCategory
	}

	boundary := s.clock.Now().Add(-window)
	if cutoff.After(boundary) {
		s.obsMetrics.RecordRetentionRefusal()
		if _, err := s.Record(ctx, auditdomain.RecordRequest{
			Action:       auditdomain.ActionPurgeRefused,
			ResourceType: "audit_category",
			ResourceID:   string(category),
			Outcome:      auditdomain.OutcomeDenied,
			Severity:     auditdomain.SeverityHigh,
			Details: map[string]any{
				"requested_cutoff":   cutoff.UTC().Format(time.RFC3339),
				"retention_boundary": boundary.UTC().Format(time.RFC3339),
			},
		}); err != nil {
			s.log.Warn("failed to audit refused purge", zap.Error(err))
		}
		return 0, auditdomain.ErrRetentionViolation
	}

	purged, err := s.repo.DeleteOlderThan(ctx, s.db, category, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.obsMetrics.RecordRetentionPurge(string(category), purged)
		s.log.Info("retention purge complete",
			zap.String("category", string(category)),
			zap.Int64("purged", purged),
		)
	}
	return purged, nil
}

func (s *Service) SweepExpired(ctx context.Context) error {
	for category, window := range s.retention {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cutoff := s.clock.Now().Add(-window)
		if _, err := s.PurgeOlderThan(ctx, category, cutoff); err != nil {
			return err
		}
	}
	return nil
}
