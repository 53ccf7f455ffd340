package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/pkg/telemetry/correlation"
)

// CorrelationMiddleware honors an inbound X-Correlation-ID, generates one
// otherwise, and echoes it on the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if cid := c.GetHeader("X-Correlation-ID"); cid != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, cid)
		}
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", cid)
		c.Next()
	}
}

// AdminRequired gates the reporting and maintenance surface behind the
// shared admin key. A missing server-side secret closes the surface
// entirely rather than opening it.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Admin-Key")
		if s.cfg.AdminSecret == "" || key == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminSecret)) != 1 {
			if _, err := s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
				Action:       auditdomain.ActionAdminDenied,
				Actor:        c.ClientIP(),
				ResourceType: "admin_api",
				ResourceID:   c.FullPath(),
				Outcome:      auditdomain.OutcomeDenied,
				Severity:     auditdomain.SeverityMedium,
			}); err != nil {
				s.log.Warn("audit record failed", zap.Error(err))
			}
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// EventRateLimited throttles the event-write endpoints per client IP.
// Redis being down fails open; losing an event is worse than letting a
// burst through.
func (s *Server) EventRateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		allowed, err := s.limiter.AllowSource(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
				Error: errorPayload{
					Type:    "rate_limited",
					Message: "too many events, slow down",
				},
			})
			return
		}
		c.Next()
	}
}
