package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
)

type listAuditLogsQuery struct {
	Category string `form:"category"`
	Action   string `form:"action"`
	Outcome  string `form:"outcome"`
	StartAt  string `form:"start_at"`
	EndAt    string `form:"end_at"`
	Limit    int    `form:"limit"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var startAt *time.Time
	if raw := strings.TrimSpace(query.StartAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
			return
		}
		startAt = &parsed
	}

	var endAt *time.Time
	if raw := strings.TrimSpace(query.EndAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
			return
		}
		endAt = &parsed
	}

	records, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Category: auditdomain.Category(strings.TrimSpace(query.Category)),
		Action:   strings.TrimSpace(query.Action),
		Outcome:  auditdomain.Outcome(strings.TrimSpace(query.Outcome)),
		StartAt:  startAt,
		EndAt:    endAt,
		Limit:    query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

type purgeRetentionRequest struct {
	Category string `json:"category"`
	Cutoff   string `json:"cutoff"`
}

func (s *Server) PurgeRetention(c *gin.Context) {
	var req purgeRetentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cutoff, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Cutoff))
	if err != nil {
		AbortWithError(c, newValidationError("cutoff", "invalid_cutoff", "invalid cutoff"))
		return
	}

	purged, err := s.auditSvc.PurgeOlderThan(c.Request.Context(),
		auditdomain.Category(strings.TrimSpace(req.Category)), cutoff)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"purged": purged}})
}
