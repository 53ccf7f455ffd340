package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/config"
	"github.com/citeflex/citeledger/internal/observability/metrics"
	"github.com/citeflex/citeledger/internal/resolution/domain"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Audit      auditdomain.Service
	Sessions   sessiondomain.Service
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type resolutionService struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	audit    auditdomain.Service
	sessions sessiondomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &resolutionService{
		db:       p.DB,
		log:      p.Log.Named("resolution.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		audit:    p.Audit,
		sessions: p.Sessions,
		metrics:  p.ObsMetrics,
	}
}

func (s *resolutionService) LogDecision(ctx context.Context, d domain.Decision) (*domain.ResolutionEvent, error) {
	if err := s.validate(ctx, d); err != nil {
		return nil, err
	}

	tier := domain.Classify(d.Similarity, d.AlternativeSelected,
		s.cfg.SimilarityAcceptedOriginal, s.cfg.SimilarityMinorEdit)

	ev := &domain.ResolutionEvent{
		ID:                  s.genID.Generate(),
		SessionID:           d.SessionID,
		CitationID:          d.CitationID,
		Tier:                tier,
		SimilarityRatio:     d.Similarity,
		AlternativeSelected: d.AlternativeSelected,
		AlternativeIndex:    d.AlternativeIndex,
		SourceEngine:        d.SourceEngine,
		CitationStyle:       d.CitationStyle,
		CitationType:        d.CitationType,
		CreatedAt:           s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}

	var delta sessiondomain.ResolutionDelta
	switch tier {
	case domain.TierAcceptedOriginal:
		delta.AcceptedOriginal = 1
	case domain.TierMinorEdit:
		delta.MinorEdits = 1
	case domain.TierAcceptedAlternative:
		delta.AcceptedAlternative = 1
	case domain.TierUserProvided:
		delta.UserProvided = 1
	}
	if _, err := s.sessions.FoldResolutions(ctx, d.SessionID, delta); err != nil {
		// The event row stands on its own; the scoreboard catches up on
		// the next aggregation pass.
		s.log.Warn("session scoreboard update failed",
			zap.String("session_id", d.SessionID.String()), zap.Error(err))
	}

	s.recordAudit(ctx, ev)
	if s.metrics != nil {
		s.metrics.RecordResolution(string(tier))
	}
	return ev, nil
}

func (s *resolutionService) ListBySession(ctx context.Context, sessionID snowflake.ID) ([]domain.ResolutionEvent, error) {
	if sessionID == 0 {
		return nil, domain.ErrInvalidSession
	}
	var events []domain.ResolutionEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// validate rejects malformed decisions before any write and leaves an
// audit trail of what was refused.
func (s *resolutionService) validate(ctx context.Context, d domain.Decision) error {
	var err error
	switch {
	case d.SessionID == 0:
		err = domain.ErrInvalidSession
	case d.Similarity < 0 || d.Similarity > 1:
		err = domain.ErrInvalidSimilarity
	default:
		return nil
	}

	if _, auditErr := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       auditdomain.ActionEventRejected,
		ResourceType: "resolution_event",
		ResourceID:   d.SessionID.String(),
		Outcome:      auditdomain.OutcomeDenied,
		Details: map[string]any{
			"citation_id": d.CitationID,
			"similarity":  d.Similarity,
			"reason":      err.Error(),
		},
	}); auditErr != nil {
		s.log.Warn("audit record failed", zap.Error(auditErr))
	}
	return err
}

func (s *resolutionService) recordAudit(ctx context.Context, ev *domain.ResolutionEvent) {
	action := auditdomain.ActionCitationAccept
	outcome := auditdomain.OutcomeSuccess
	if !ev.Tier.Success() {
		action = auditdomain.ActionCitationReject
		outcome = auditdomain.OutcomeFailure
	}
	if _, err := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       action,
		ResourceType: "resolution_event",
		ResourceID:   ev.ID.String(),
		Outcome:      outcome,
		Details: map[string]any{
			"session_id": ev.SessionID.String(),
			"tier":       string(ev.Tier),
			"similarity": ev.SimilarityRatio,
			"engine":     ev.SourceEngine,
		},
	}); err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
}
