package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/session/domain"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
	"github.com/citeflex/citeledger/pkg/db"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Audit auditdomain.Service
	Users userdomain.Service
}

type sessionService struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	audit auditdomain.Service
	users userdomain.Service
}

func NewService(p Params) domain.Service {
	return &sessionService{
		db:    p.DB,
		log:   p.Log.Named("session.service"),
		genID: p.GenID,
		clock: p.Clock,
		audit: p.Audit,
		users: p.Users,
	}
}

func (s *sessionService) Start(ctx context.Context, req domain.StartRequest) (*domain.DocumentSession, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return nil, domain.ErrInvalidUser
	}

	key := req.SessionKey
	if key == "" {
		key = ulid.Make().String()
	}

	sess := &domain.DocumentSession{
		ID:             s.genID.Generate(),
		SessionKey:     key,
		UserID:         req.UserID,
		Filename:       req.Filename,
		FileSizeBytes:  req.FileSizeBytes,
		CitationStyle:  req.CitationStyle,
		ProcessingMode: req.ProcessingMode,
		IsPreview:      req.IsPreview,
		Status:         domain.StatusProcessing,
		StartedAt:      s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, err
	}

	if _, err := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       auditdomain.ActionDocumentProcess,
		Actor:        req.UserID.String(),
		ResourceType: "document_session",
		ResourceID:   sess.ID.String(),
		Outcome:      auditdomain.OutcomeSuccess,
		Details: map[string]any{
			"session_key": key,
			"filename":    req.Filename,
			"preview":     req.IsPreview,
		},
	}); err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
	return sess, nil
}

func (s *sessionService) Get(ctx context.Context, id snowflake.ID) (*domain.DocumentSession, error) {
	var sess domain.DocumentSession
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionService) Finish(ctx context.Context, id snowflake.ID, req domain.FinishRequest) (*domain.DocumentSession, error) {
	if !req.Status.Terminal() {
		return nil, domain.ErrInvalidStatus
	}

	var errMsg *string
	if req.Status == domain.StatusFailed && req.ErrorMessage != "" {
		errMsg = &req.ErrorMessage
	}

	var sess domain.DocumentSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sess, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if sess.Status.Terminal() {
			return domain.ErrAlreadyFinalized
		}

		now := s.clock.Now()
		elapsed := now.Sub(sess.StartedAt).Milliseconds()
		res := tx.Exec(`
			UPDATE document_sessions
			SET status = ?, error_message = ?, finished_at = ?, processing_time_ms = ?
			WHERE id = ? AND status = ?
		`, req.Status, errMsg, now, elapsed, id, domain.StatusProcessing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrAlreadyFinalized
		}

		sess.Status = req.Status
		sess.ErrorMessage = errMsg
		sess.FinishedAt = &now
		sess.ProcessingTimeMS = &elapsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionService) FoldResolutions(ctx context.Context, id snowflake.ID, delta domain.ResolutionDelta) (*domain.DocumentSession, error) {
	var sess domain.DocumentSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sess, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		sess.TotalCitations += delta.Total()
		sess.CitationsResolved += delta.Successes()
		sess.CitationsFailed += delta.UserProvided
		sess.AcceptedOriginal += delta.AcceptedOriginal
		sess.MinorEdits += delta.MinorEdits
		sess.AcceptedAlternative += delta.AcceptedAlternative
		sess.UserProvided += delta.UserProvided
		sess.SuccessRate = successRate(sess.CitationsResolved, sess.TotalCitations)

		return tx.Exec(`
			UPDATE document_sessions
			SET total_citations = ?, citations_resolved = ?, citations_failed = ?,
			    accepted_original = ?, minor_edits = ?, accepted_alternative = ?,
			    user_provided = ?, success_rate = ?
			WHERE id = ?
		`, sess.TotalCitations, sess.CitationsResolved, sess.CitationsFailed,
			sess.AcceptedOriginal, sess.MinorEdits, sess.AcceptedAlternative,
			sess.UserProvided, sess.SuccessRate, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionService) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).Exec(`
		UPDATE document_sessions
		SET status = ?, error_message = ?, finished_at = ?
		WHERE status = ? AND started_at < ?
	`, domain.StatusFailed, "processing timed out", s.clock.Now(),
		domain.StatusProcessing, cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}

	if _, err := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       auditdomain.ActionSessionSweep,
		ResourceType: "document_session",
		Outcome:      auditdomain.OutcomeSuccess,
		Details: map[string]any{
			"swept":  res.RowsAffected,
			"cutoff": cutoff.Format(time.RFC3339),
		},
	}); err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
	s.log.Info("stale sessions swept", zap.Int64("count", res.RowsAffected))
	return res.RowsAffected, nil
}

// successRate returns 100*successes/total rounded to two decimals, or
// nil when no citations were seen. Zero and unknown are different facts.
func successRate(successes, total int64) *float64 {
	if total == 0 {
		return nil
	}
	rate := math.Round(100*float64(successes)/float64(total)*100) / 100
	return &rate
}
