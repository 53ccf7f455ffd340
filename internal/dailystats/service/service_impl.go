package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apicalldomain "github.com/citeflex/citeledger/internal/apicall/domain"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/clock"
	"github.com/citeflex/citeledger/internal/config"
	"github.com/citeflex/citeledger/internal/dailystats/domain"
	"github.com/citeflex/citeledger/internal/observability/metrics"
	resolutiondomain "github.com/citeflex/citeledger/internal/resolution/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Audit      auditdomain.Service
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type statsService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &statsService{
		db:      p.DB,
		log:     p.Log.Named("dailystats.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		audit:   p.Audit,
		metrics: p.ObsMetrics,
	}
}

func (s *statsService) RebuildSnapshot(ctx context.Context, dateKey string) (*domain.DailySnapshot, error) {
	start, err := domain.ParseDateKey(dateKey)
	if err != nil {
		return nil, domain.ErrInvalidDate
	}
	if s.closed(start) {
		return nil, domain.ErrDateClosed
	}
	return s.rebuild(ctx, dateKey, start)
}

func (s *statsService) RebuildOpenDates(ctx context.Context) error {
	day := s.clock.Now().UTC().Truncate(24 * time.Hour)
	for !s.closed(day) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.rebuild(ctx, domain.DateKey(day), day); err != nil {
			return err
		}
		day = day.AddDate(0, 0, -1)
	}
	return nil
}

func (s *statsService) Backfill(ctx context.Context, dateKey, actor, reason string) (*domain.DailySnapshot, error) {
	start, err := domain.ParseDateKey(dateKey)
	if err != nil {
		return nil, domain.ErrInvalidDate
	}

	if _, err := s.audit.Record(ctx, auditdomain.RecordRequest{
		Action:       auditdomain.ActionSnapshotBackfill,
		Actor:        actor,
		ResourceType: "daily_snapshot",
		ResourceID:   dateKey,
		Outcome:      auditdomain.OutcomeSuccess,
		Severity:     auditdomain.SeverityMedium,
		Details:      map[string]any{"reason": reason},
	}); err != nil {
		s.log.Warn("audit record failed", zap.Error(err))
	}
	return s.rebuild(ctx, dateKey, start)
}

func (s *statsService) Get(ctx context.Context, dateKey string) (*domain.DailySnapshot, error) {
	if _, err := domain.ParseDateKey(dateKey); err != nil {
		return nil, domain.ErrInvalidDate
	}
	var snap domain.DailySnapshot
	err := s.db.WithContext(ctx).First(&snap, "date_key = ?", dateKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *statsService) Range(ctx context.Context, startKey, endKey string) ([]domain.DailySnapshot, error) {
	if _, err := domain.ParseDateKey(startKey); err != nil {
		return nil, domain.ErrInvalidDate
	}
	if _, err := domain.ParseDateKey(endKey); err != nil {
		return nil, domain.ErrInvalidDate
	}
	var snaps []domain.DailySnapshot
	err := s.db.WithContext(ctx).
		Where("date_key >= ? AND date_key < ?", startKey, endKey).
		Order("date_key ASC").
		Find(&snaps).Error
	return snaps, err
}

// closed reports whether a date has left the grace window and may no
// longer be rebuilt without an explicit backfill.
func (s *statsService) closed(day time.Time) bool {
	endOfDay := day.Add(24 * time.Hour)
	return s.clock.Now().After(endOfDay.Add(s.cfg.AggregationGracePeriod))
}

// rebuild recomputes the whole day in memory, then swaps in the new
// row with a delete-and-reinsert keyed on the date.
func (s *statsService) rebuild(ctx context.Context, dateKey string, start time.Time) (*domain.DailySnapshot, error) {
	end := start.Add(24 * time.Hour)

	snap := &domain.DailySnapshot{
		ID:      s.genID.Generate(),
		DateKey: dateKey,
	}
	if err := s.aggregateSessions(ctx, snap, start, end); err != nil {
		s.fail(err)
		return nil, err
	}
	if err := s.aggregateCalls(ctx, snap, start, end); err != nil {
		s.fail(err)
		return nil, err
	}
	if err := s.aggregateResolutions(ctx, snap, start, end); err != nil {
		s.fail(err)
		return nil, err
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replace the whole row. A delete plus insert works the same on
		// every dialect and a failed compute never leaves a partial row.
		if err := tx.Exec(`DELETE FROM daily_snapshots WHERE date_key = ?`, snap.DateKey).Error; err != nil {
			return err
		}
		return tx.Exec(`
			INSERT INTO daily_snapshots (
				id, date_key,
				documents_processed, documents_preview, documents_paid,
				citations_found, citations_resolved, citations_failed,
				cost_total_usd, cost_openai_usd, cost_claude_usd, cost_gemini_usd, cost_serpapi_usd, cost_other_usd,
				calls_total, calls_openai, calls_claude, calls_gemini, calls_crossref, calls_pubmed, calls_serpapi,
				success_rate_overall, success_rate_url, success_rate_doi, success_rate_parenthetical,
				type_journal, type_book, type_legal, type_newspaper, type_other,
				resolution_accepted_original, resolution_minor_edit, resolution_accepted_alternative,
				resolution_user_provided, resolution_success_rate,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, snap.ID, snap.DateKey,
			snap.DocumentsProcessed, snap.DocumentsPreview, snap.DocumentsPaid,
			snap.CitationsFound, snap.CitationsResolved, snap.CitationsFailed,
			snap.CostTotalUSD, snap.CostOpenAIUSD, snap.CostClaudeUSD, snap.CostGeminiUSD, snap.CostSerpapiUSD, snap.CostOtherUSD,
			snap.CallsTotal, snap.CallsOpenAI, snap.CallsClaude, snap.CallsGemini, snap.CallsCrossref, snap.CallsPubmed, snap.CallsSerpapi,
			snap.SuccessRateOverall, snap.SuccessRateURL, snap.SuccessRateDOI, snap.SuccessRateParenthetical,
			snap.TypeJournal, snap.TypeBook, snap.TypeLegal, snap.TypeNewspaper, snap.TypeOther,
			snap.ResolutionAcceptedOriginal, snap.ResolutionMinorEdit, snap.ResolutionAcceptedAlternative,
			snap.ResolutionUserProvided, snap.ResolutionSuccessRate,
			now, now).Error
	})
	if err != nil {
		s.fail(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSnapshotRebuild("ok")
	}
	s.log.Debug("snapshot rebuilt", zap.String("date", dateKey))
	return s.Get(ctx, dateKey)
}

func (s *statsService) aggregateSessions(ctx context.Context, snap *domain.DailySnapshot, start, end time.Time) error {
	var row struct {
		Documents int64
		Preview   int64
		Found     int64
		Resolved  int64
		Failed    int64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS documents,
		       COALESCE(SUM(CASE WHEN is_preview THEN 1 ELSE 0 END), 0) AS preview,
		       COALESCE(SUM(total_citations), 0) AS found,
		       COALESCE(SUM(accepted_original + minor_edits + accepted_alternative), 0) AS resolved,
		       COALESCE(SUM(user_provided), 0) AS failed
		FROM document_sessions
		WHERE started_at >= ? AND started_at < ?
	`, start, end).Scan(&row).Error; err != nil {
		return err
	}
	snap.DocumentsProcessed = row.Documents
	snap.DocumentsPreview = row.Preview
	snap.DocumentsPaid = row.Documents - row.Preview
	snap.CitationsFound = row.Found
	snap.CitationsResolved = row.Resolved
	snap.CitationsFailed = row.Failed
	return nil
}

func (s *statsService) aggregateCalls(ctx context.Context, snap *domain.DailySnapshot, start, end time.Time) error {
	var byProvider []struct {
		Provider string
		Calls    int64
		Cost     float64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT provider, COUNT(*) AS calls, COALESCE(SUM(cost_usd), 0) AS cost
		FROM api_call_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY provider
	`, start, end).Scan(&byProvider).Error; err != nil {
		return err
	}
	for _, p := range byProvider {
		snap.CallsTotal += p.Calls
		snap.CostTotalUSD += p.Cost
		switch apicalldomain.Provider(p.Provider) {
		case apicalldomain.ProviderOpenAI:
			snap.CallsOpenAI = p.Calls
			snap.CostOpenAIUSD = p.Cost
		case apicalldomain.ProviderClaude:
			snap.CallsClaude = p.Calls
			snap.CostClaudeUSD = p.Cost
		case apicalldomain.ProviderGemini:
			snap.CallsGemini = p.Calls
			snap.CostGeminiUSD = p.Cost
		case apicalldomain.ProviderSerpapi:
			snap.CallsSerpapi = p.Calls
			snap.CostSerpapiUSD = p.Cost
		case apicalldomain.ProviderCrossref:
			snap.CallsCrossref = p.Calls
			snap.CostOtherUSD += p.Cost
		case apicalldomain.ProviderPubmed:
			snap.CallsPubmed = p.Calls
			snap.CostOtherUSD += p.Cost
		default:
			snap.CostOtherUSD += p.Cost
		}
	}
	snap.CostTotalUSD = math.Round(snap.CostTotalUSD*1e8) / 1e8
	snap.CostOtherUSD = math.Round(snap.CostOtherUSD*1e8) / 1e8

	var bySource []struct {
		SourceType string
		Total      int64
		Successes  int64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT source_type,
		       COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successes
		FROM api_call_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY source_type
	`, start, end).Scan(&bySource).Error; err != nil {
		return err
	}
	var total, successes int64
	for _, src := range bySource {
		total += src.Total
		successes += src.Successes
		switch apicalldomain.SourceType(src.SourceType) {
		case apicalldomain.SourceURL:
			snap.SuccessRateURL = percentage(src.Successes, src.Total)
		case apicalldomain.SourceDOI:
			snap.SuccessRateDOI = percentage(src.Successes, src.Total)
		case apicalldomain.SourceParenthetical:
			snap.SuccessRateParenthetical = percentage(src.Successes, src.Total)
		}
	}
	snap.SuccessRateOverall = percentage(successes, total)

	var byType []struct {
		CitationType string
		Count        int64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT citation_type, COUNT(*) AS count
		FROM api_call_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY citation_type
	`, start, end).Scan(&byType).Error; err != nil {
		return err
	}
	for _, t := range byType {
		switch apicalldomain.CitationType(t.CitationType) {
		case apicalldomain.CitationJournal:
			snap.TypeJournal = t.Count
		case apicalldomain.CitationBook:
			snap.TypeBook = t.Count
		case apicalldomain.CitationLegal:
			snap.TypeLegal = t.Count
		case apicalldomain.CitationNewspaper:
			snap.TypeNewspaper = t.Count
		default:
			snap.TypeOther += t.Count
		}
	}
	return nil
}

func (s *statsService) aggregateResolutions(ctx context.Context, snap *domain.DailySnapshot, start, end time.Time) error {
	var byTier []struct {
		Tier  string
		Count int64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT tier, COUNT(*) AS count
		FROM resolution_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY tier
	`, start, end).Scan(&byTier).Error; err != nil {
		return err
	}
	var total, successes int64
	for _, t := range byTier {
		total += t.Count
		tier := resolutiondomain.Tier(t.Tier)
		if tier.Success() {
			successes += t.Count
		}
		switch tier {
		case resolutiondomain.TierAcceptedOriginal:
			snap.ResolutionAcceptedOriginal = t.Count
		case resolutiondomain.TierMinorEdit:
			snap.ResolutionMinorEdit = t.Count
		case resolutiondomain.TierAcceptedAlternative:
			snap.ResolutionAcceptedAlternative = t.Count
		case resolutiondomain.TierUserProvided:
			snap.ResolutionUserProvided = t.Count
		}
	}
	snap.ResolutionSuccessRate = percentage(successes, total)
	return nil
}

func (s *statsService) fail(err error) {
	if s.metrics != nil {
		s.metrics.RecordSnapshotRebuild("error")
	}
	s.log.Error("snapshot rebuild failed", zap.Error(err))
}

// percentage returns 100*part/total rounded to two decimals, or nil
// when there is nothing to measure.
func percentage(part, total int64) *float64 {
	if total == 0 {
		return nil
	}
	rate := math.Round(100*float64(part)/float64(total)*100) / 100
	return &rate
}
