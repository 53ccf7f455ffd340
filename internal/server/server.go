package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/citeflex/citeledger/internal/apicall"
	apicalldomain "github.com/citeflex/citeledger/internal/apicall/domain"
	"github.com/citeflex/citeledger/internal/audit"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/cache"
	"github.com/citeflex/citeledger/internal/dailystats"
	dailystatsdomain "github.com/citeflex/citeledger/internal/dailystats/domain"
	"github.com/citeflex/citeledger/internal/ledger"
	ledgerdomain "github.com/citeflex/citeledger/internal/ledger/domain"
	obsmetrics "github.com/citeflex/citeledger/internal/observability/metrics"
	"github.com/citeflex/citeledger/internal/ratelimit"
	"github.com/citeflex/citeledger/internal/reporting"
	reportingdomain "github.com/citeflex/citeledger/internal/reporting/domain"
	"github.com/citeflex/citeledger/internal/resolution"
	resolutiondomain "github.com/citeflex/citeledger/internal/resolution/domain"
	"github.com/citeflex/citeledger/internal/scheduler"
	"github.com/citeflex/citeledger/internal/session"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
	"github.com/citeflex/citeledger/internal/user"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"

	"github.com/citeflex/citeledger/internal/config"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	user.Module,
	ledger.Module,
	session.Module,
	apicall.Module,
	resolution.Module,
	dailystats.Module,
	reporting.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CorrelationMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	userSvc       userdomain.Service
	ledgerSvc     ledgerdomain.Service
	sessionSvc    sessiondomain.Service
	apiCallSvc    apicalldomain.Service
	resolutionSvc resolutiondomain.Service
	dailyStatsSvc dailystatsdomain.Service
	reportingSvc  reportingdomain.Service
	auditSvc      auditdomain.Service
	obsMetrics    *obsmetrics.Metrics
	limiter       *ratelimit.EventLimiter
	reportCache   *cache.TTL[string, any]
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	UserSvc       userdomain.Service
	LedgerSvc     ledgerdomain.Service
	SessionSvc    sessiondomain.Service
	APICallSvc    apicalldomain.Service
	ResolutionSvc resolutiondomain.Service
	DailyStatsSvc dailystatsdomain.Service
	ReportingSvc  reportingdomain.Service
	AuditSvc      auditdomain.Service
	ObsMetrics    *obsmetrics.Metrics     `optional:"true"`
	Limiter       *ratelimit.EventLimiter `optional:"true"`

	Scheduler *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		userSvc:       p.UserSvc,
		ledgerSvc:     p.LedgerSvc,
		sessionSvc:    p.SessionSvc,
		apiCallSvc:    p.APICallSvc,
		resolutionSvc: p.ResolutionSvc,
		dailyStatsSvc: p.DailyStatsSvc,
		reportingSvc:  p.ReportingSvc,
		auditSvc:      p.AuditSvc,
		obsMetrics:    p.ObsMetrics,
		limiter:       p.Limiter,
		reportCache:   cache.NewTTL[string, any](reportCacheTTL),
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/users", s.CreateUser)
	api.GET("/users/:userId", s.GetUser)
	api.DELETE("/users/:userId", s.TombstoneUser)

	api.POST("/users/:userId/credits", s.CreditUser)
	api.GET("/users/:userId/balance", s.GetBalance)
	api.GET("/users/:userId/ledger", s.ListLedger)

	api.POST("/sessions", s.StartSession)
	api.GET("/sessions/:sessionId", s.GetSession)
	api.POST("/sessions/:sessionId/finish", s.FinishSession)
	api.POST("/sessions/:sessionId/charge", s.ChargeSession)

	events := api.Group("", s.EventRateLimited())
	events.POST("/calls", s.LogStandaloneCall)
	events.POST("/sessions/:sessionId/calls", s.LogAPICall)
	events.POST("/sessions/:sessionId/resolutions", s.LogResolution)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/api", s.AdminRequired())

	admin.GET("/costs", s.GetCosts)
	admin.GET("/success-rates", s.GetSuccessRates)
	admin.GET("/resolution-stats", s.GetResolutionStats)
	admin.GET("/resolution-engines", s.GetResolutionEngines)
	admin.GET("/daily-stats", s.ListDailyStats)
	admin.POST("/refresh-stats", s.RefreshDailyStats)
	admin.POST("/daily-stats/:date/backfill", s.BackfillDailyStats)
	admin.GET("/audit-logs", s.ListAuditLogs)
	admin.POST("/retention/purge", s.PurgeRetention)
}
