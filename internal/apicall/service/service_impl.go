package service

import (
	"context"
	"errors"
	"math"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/citeflex/citeledger/internal/apicall/domain"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/observability/metrics"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Audit      auditdomain.Service
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type apicallService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &apicallService{
		db:      p.DB,
		log:     p.Log.Named("apicall.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		audit:   p.Audit,
		metrics: p.ObsMetrics,
	}
}

func (s *apicallService) LogCall(ctx context.Context, ev domain.CallEvent) (*domain.APICallEvent, error) {
	if err := s.validate(ctx, ev); err != nil {
		return nil, err
	}

	// The rate table only applies when the collaborator did not report
	// the actual spend itself.
	cost := domain.CalculateCost(ev.Provider, ev.InputTokens, ev.OutputTokens, ev.SearchCount)
	if ev.CostUSD != nil {
		cost = math.Round(*ev.CostUSD*1e8) / 1e8
	}
	call := &domain.APICallEvent{
		ID:             s.genID.Generate(),
		SessionID:      ev.SessionID,
		Provider:       ev.Provider,
		Endpoint:       ev.Endpoint,
		SourceType:     ev.SourceType,
		CitationType:   ev.CitationType,
		InputTokens:    ev.InputTokens,
		OutputTokens:   ev.OutputTokens,
		SearchCount:    ev.SearchCount,
		CostUSD:        cost,
		Success:        ev.Success,
		Confidence:     ev.Confidence,
		ResponseTimeMS: ev.ResponseTimeMS,
		Metadata:       datatypes.JSONMap(ev.Metadata),
		CreatedAt:      s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ev.SessionID != nil {
			var sess sessiondomain.DocumentSession
			if err := tx.First(&sess, "id = ?", *ev.SessionID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.ErrInvalidSession
				}
				return err
			}
			call.UserID = sess.UserID
		}

		if err := tx.Exec(`
			INSERT INTO api_call_events
				(id, session_id, user_id, provider, endpoint, source_type, citation_type,
				 input_tokens, output_tokens, search_count, cost_usd,
				 success, confidence, response_time_ms, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, call.ID, call.SessionID, call.UserID, call.Provider, call.Endpoint,
			call.SourceType, call.CitationType, call.InputTokens, call.OutputTokens,
			call.SearchCount, call.CostUSD, call.Success, call.Confidence,
			call.ResponseTimeMS, call.Metadata, call.CreatedAt).Error; err != nil {
			return err
		}
		if call.SessionID == nil {
			return nil
		}

		// Append and accumulate commit together so the session total
		// always equals the sum of its call rows.
		return tx.Exec(`
			UPDATE document_sessions
			SET total_cost_usd = total_cost_usd + ?, api_calls = api_calls + 1
			WHERE id = ?
		`, call.CostUSD, *call.SessionID).Error
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAPICall(string(call.Provider))
	}
	s.log.Debug("api call logged",
		zap.String("session_id", sessionRef(call.SessionID)),
		zap.String("provider", string(call.Provider)),
		zap.Float64("cost_usd", call.CostUSD))
	return call, nil
}

func sessionRef(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func (s *apicallService) ListBySession(ctx context.Context, sessionID snowflake.ID) ([]domain.APICallEvent, error) {
	if sessionID == 0 {
		return nil, domain.ErrInvalidSession
	}
	var calls []domain.APICallEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&calls).Error
	return calls, err
}

// validate rejects malformed events before any write and leaves an
// audit trail of what was refused.
func (s *apicallService) validate(ctx context.Context, ev domain.CallEvent) error {
	var err error
	switch {
	case ev.SessionID != nil && *ev.SessionID == 0:
		err = domain.ErrInvalidSession
	case !ev.Provider.Valid():
		err = domain.ErrInvalidProvider
	case !ev.SourceType.Valid():
		err = domain.ErrInvalidSourceType
	case !ev.CitationType.Valid():
		err = domain.ErrInvalidCitationType
	case ev.InputTokens < 0 || ev.OutputTokens < 0 || ev.SearchCount < 0:
		err = domain.ErrInvalidTokens
	case ev.CostUSD != nil && *ev.CostUSD < 0:
		err = domain.ErrInvalidCost
	default:
		return nil
	}

	if _, auditErr := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       auditdomain.ActionEventRejected,
		ResourceType: "api_call_event",
		ResourceID:   sessionRef(ev.SessionID),
		Outcome:      auditdomain.OutcomeDenied,
		Details: map[string]any{
			"provider": string(ev.Provider),
			"reason":   err.Error(),
		},
	}); auditErr != nil {
		s.log.Warn("audit record failed", zap.Error(auditErr))
	}
	return err
}
