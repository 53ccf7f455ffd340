package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/config"
	dailystatsdomain "github.com/citeflex/citeledger/internal/dailystats/domain"
	"github.com/citeflex/citeledger/internal/ratelimit"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
)

type Params struct {
	fx.In

	LC       fx.Lifecycle
	Log      *zap.Logger
	Config   config.Config
	Stats    dailystatsdomain.Service
	Audit    auditdomain.Service
	Sessions sessiondomain.Service
	Limiter  *ratelimit.EventLimiter `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs: the snapshot rollup,
// the retention sweep and the stale session sweep.
type Scheduler struct {
	cron       *cron.Cron
	log        *zap.Logger
	stats      dailystatsdomain.Service
	audit      auditdomain.Service
	sessions   sessiondomain.Service
	staleAfter time.Duration
	limiter    *ratelimit.EventLimiter
}

func New(p Params) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(),
		log:        p.Log.Named("scheduler"),
		stats:      p.Stats,
		audit:      p.Audit,
		sessions:   p.Sessions,
		staleAfter: p.Config.SessionStaleAfter,
		limiter:    p.Limiter,
	}

	if _, err := s.cron.AddFunc(p.Config.SchedulerRollupSpec, s.runRollup); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(p.Config.SchedulerRetentionSpec, s.runRetention); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(p.Config.SchedulerSessionSweepSpec, s.runSessionSweep); err != nil {
		return nil, err
	}

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.cron.Start()
			s.log.Info("scheduler started",
				zap.String("rollup_spec", p.Config.SchedulerRollupSpec),
				zap.String("retention_spec", p.Config.SchedulerRetentionSpec))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := s.cron.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return s, nil
}

// runRollup rebuilds the open snapshot dates, holding the cluster-wide
// lock when redis is configured so only one instance does the work.
func (s *Scheduler) runRollup() {
	ctx := context.Background()

	token, ok, err := s.limiter.TryLockRollup(ctx)
	if err != nil {
		s.log.Warn("rollup lock unavailable, proceeding without it", zap.Error(err))
	} else if !ok {
		s.log.Debug("rollup already running elsewhere")
		return
	} else {
		defer func() {
			if err := s.limiter.ReleaseRollup(ctx, token); err != nil {
				s.log.Warn("failed to release rollup lock", zap.Error(err))
			}
		}()
	}

	if err := s.stats.RebuildOpenDates(ctx); err != nil {
		s.log.Error("snapshot rollup failed", zap.Error(err))
	}
}

func (s *Scheduler) runRetention() {
	ctx := context.Background()
	if err := s.audit.SweepExpired(ctx); err != nil {
		s.log.Error("retention sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) runSessionSweep() {
	ctx := context.Background()
	if _, err := s.sessions.SweepStale(ctx, s.staleAfter); err != nil {
		s.log.Error("session sweep failed", zap.Error(err))
	}
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(func(*Scheduler) {}),
)
