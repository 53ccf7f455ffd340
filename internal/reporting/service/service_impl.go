package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/citeflex/citeledger/internal/reporting/domain"
	resolutiondomain "github.com/citeflex/citeledger/internal/resolution/domain"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type reportingService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) domain.Service {
	return &reportingService{
		db:  p.DB,
		log: p.Log.Named("reporting.service"),
	}
}

func (s *reportingService) Costs(ctx context.Context, start, end time.Time) (*domain.CostReport, error) {
	if !start.Before(end) {
		return nil, domain.ErrInvalidRange
	}

	var rows []struct {
		Provider string
		Calls    int64
		Cost     float64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT provider, COUNT(*) AS calls, COALESCE(SUM(cost_usd), 0) AS cost
		FROM api_call_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY provider
	`, start, end).Scan(&rows).Error; err != nil {
		return nil, err
	}

	report := &domain.CostReport{Start: start, End: end}
	for _, r := range rows {
		report.TotalUSD += r.Cost
		report.TotalCalls += r.Calls
		report.ByProvider = append(report.ByProvider, domain.ProviderCost{
			Provider: r.Provider,
			Calls:    r.Calls,
			CostUSD:  math.Round(r.Cost*1e8) / 1e8,
		})
	}
	report.TotalUSD = math.Round(report.TotalUSD*1e8) / 1e8
	sort.Slice(report.ByProvider, func(i, j int) bool {
		if report.ByProvider[i].CostUSD != report.ByProvider[j].CostUSD {
			return report.ByProvider[i].CostUSD > report.ByProvider[j].CostUSD
		}
		return report.ByProvider[i].Provider < report.ByProvider[j].Provider
	})
	return report, nil
}

func (s *reportingService) SuccessRates(ctx context.Context, start, end time.Time) ([]domain.SourceRate, error) {
	if !start.Before(end) {
		return nil, domain.ErrInvalidRange
	}

	var rows []struct {
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
	`, start, end).Scan(&rows).Error; err != nil {
		return nil, err
	}

	rates := make([]domain.SourceRate, 0, len(rows))
	for _, r := range rows {
		rates = append(rates, domain.SourceRate{
			SourceType: r.SourceType,
			Total:      r.Total,
			Successes:  r.Successes,
			Rate:       percentage(r.Successes, r.Total),
		})
	}
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].Total != rates[j].Total {
			return rates[i].Total > rates[j].Total
		}
		return rates[i].SourceType < rates[j].SourceType
	})
	return rates, nil
}

func (s *reportingService) ResolutionStats(ctx context.Context, start, end time.Time) (*domain.ResolutionReport, error) {
	if !start.Before(end) {
		return nil, domain.ErrInvalidRange
	}

	var rows []struct {
		Tier  string
		Count int64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT tier, COUNT(*) AS count
		FROM resolution_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY tier
	`, start, end).Scan(&rows).Error; err != nil {
		return nil, err
	}

	report := &domain.ResolutionReport{Start: start, End: end}
	var successes int64
	for _, r := range rows {
		report.Total += r.Count
		tier := resolutiondomain.Tier(r.Tier)
		if tier.Success() {
			successes += r.Count
		}
		switch tier {
		case resolutiondomain.TierAcceptedOriginal:
			report.AcceptedOriginal = r.Count
		case resolutiondomain.TierMinorEdit:
			report.MinorEdits = r.Count
		case resolutiondomain.TierAcceptedAlternative:
			report.AcceptedAlternative = r.Count
		case resolutiondomain.TierUserProvided:
			report.UserProvided = r.Count
		}
	}
	report.SuccessRate = percentage(successes, report.Total)
	return report, nil
}

func (s *reportingService) ResolutionByEngine(ctx context.Context, start, end time.Time) ([]domain.EngineRate, error) {
	if !start.Before(end) {
		return nil, domain.ErrInvalidRange
	}

	var rows []struct {
		Engine    string
		Total     int64
		Successes int64
	}
	if err := s.db.WithContext(ctx).Raw(`
		SELECT source_engine AS engine,
		       COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN tier != ? THEN 1 ELSE 0 END), 0) AS successes
		FROM resolution_events
		WHERE created_at >= ? AND created_at < ? AND source_engine != ''
		GROUP BY source_engine
	`, resolutiondomain.TierUserProvided, start, end).Scan(&rows).Error; err != nil {
		return nil, err
	}

	engines := make([]domain.EngineRate, 0, len(rows))
	for _, r := range rows {
		engines = append(engines, domain.EngineRate{
			Engine:    r.Engine,
			Total:     r.Total,
			Successes: r.Successes,
			Rate:      percentage(r.Successes, r.Total),
		})
	}
	sort.Slice(engines, func(i, j int) bool {
		if engines[i].Total != engines[j].Total {
			return engines[i].Total > engines[j].Total
		}
		return engines[i].Engine < engines[j].Engine
	})
	return engines, nil
}

func percentage(part, total int64) *float64 {
	if total == 0 {
		return nil
	}
	rate := math.Round(100*float64(part)/float64(total)*100) / 100
	return &rate
}
