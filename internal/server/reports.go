package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	dailystatsdomain "github.com/citeflex/citeledger/internal/dailystats/domain"
)

// Admin report queries scan the raw event tables, so identical windows
// within a short interval are served from memory.
const reportCacheTTL = 30 * time.Second

func (s *Server) cachedReport(c *gin.Context, kind string, start, end time.Time, load func() (any, error)) {
	key := kind + "|" + start.Format(time.RFC3339) + "|" + end.Format(time.RFC3339)
	if data, ok := s.reportCache.Get(key); ok {
		c.JSON(http.StatusOK, gin.H{"data": data})
		return
	}

	data, err := load()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.reportCache.Set(key, data)
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// reportWindow resolves the [start, end) window from either explicit
// RFC3339 bounds or a trailing day count (default 30). The implicit end
// is truncated to the minute so repeated day-count queries share a
// cache key.
func reportWindow(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC().Truncate(time.Minute)
	startRaw := strings.TrimSpace(c.Query("start"))
	endRaw := strings.TrimSpace(c.Query("end"))

	if startRaw != "" || endRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			AbortWithError(c, newValidationError("start", "invalid_start", "invalid start"))
			return time.Time{}, time.Time{}, false
		}
		end := now
		if endRaw != "" {
			end, err = time.Parse(time.RFC3339, endRaw)
			if err != nil {
				AbortWithError(c, newValidationError("end", "invalid_end", "invalid end"))
				return time.Time{}, time.Time{}, false
			}
		}
		return start, end, true
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		AbortWithError(c, newValidationError("days", "invalid_days", "invalid days"))
		return time.Time{}, time.Time{}, false
	}
	return now.AddDate(0, 0, -days), now, true
}

func (s *Server) GetCosts(c *gin.Context) {
	start, end, ok := reportWindow(c)
	if !ok {
		return
	}
	s.cachedReport(c, "costs", start, end, func() (any, error) {
		return s.reportingSvc.Costs(c.Request.Context(), start, end)
	})
}

func (s *Server) GetSuccessRates(c *gin.Context) {
	start, end, ok := reportWindow(c)
	if !ok {
		return
	}
	s.cachedReport(c, "success_rates", start, end, func() (any, error) {
		return s.reportingSvc.SuccessRates(c.Request.Context(), start, end)
	})
}

func (s *Server) GetResolutionStats(c *gin.Context) {
	start, end, ok := reportWindow(c)
	if !ok {
		return
	}
	s.cachedReport(c, "resolution_stats", start, end, func() (any, error) {
		return s.reportingSvc.ResolutionStats(c.Request.Context(), start, end)
	})
}

func (s *Server) GetResolutionEngines(c *gin.Context) {
	start, end, ok := reportWindow(c)
	if !ok {
		return
	}
	s.cachedReport(c, "resolution_engines", start, end, func() (any, error) {
		return s.reportingSvc.ResolutionByEngine(c.Request.Context(), start, end)
	})
}

func (s *Server) ListDailyStats(c *gin.Context) {
	start, end, ok := reportWindow(c)
	if !ok {
		return
	}
	snaps, err := s.dailyStatsSvc.Range(c.Request.Context(),
		dailystatsdomain.DateKey(start), dailystatsdomain.DateKey(end.Add(24*time.Hour)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snaps})
}

func (s *Server) RefreshDailyStats(c *gin.Context) {
	if err := s.dailyStatsSvc.RebuildOpenDates(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

type backfillRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (s *Server) BackfillDailyStats(c *gin.Context) {
	dateKey := strings.TrimSpace(c.Param("date"))
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	snap, err := s.dailyStatsSvc.Backfill(c.Request.Context(), dateKey,
		strings.TrimSpace(req.Actor), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}
