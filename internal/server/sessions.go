package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	apicalldomain "github.com/citeflex/citeledger/internal/apicall/domain"
	ledgerdomain "github.com/citeflex/citeledger/internal/ledger/domain"
	resolutiondomain "github.com/citeflex/citeledger/internal/resolution/domain"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
)

type startSessionRequest struct {
	UserID         string `json:"user_id"`
	SessionKey     string `json:"session_key"`
	Filename       string `json:"filename"`
	FileSizeBytes  int64  `json:"file_size_bytes"`
	CitationStyle  string `json:"citation_style"`
	ProcessingMode string `json:"processing_mode"`
	IsPreview      bool   `json:"is_preview"`
}

func (s *Server) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseSnowflake(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "invalid user id"))
		return
	}

	sess, err := s.sessionSvc.Start(c.Request.Context(), sessiondomain.StartRequest{
		UserID:         userID,
		SessionKey:     strings.TrimSpace(req.SessionKey),
		Filename:       strings.TrimSpace(req.Filename),
		FileSizeBytes:  req.FileSizeBytes,
		CitationStyle:  strings.TrimSpace(req.CitationStyle),
		ProcessingMode: strings.TrimSpace(req.ProcessingMode),
		IsPreview:      req.IsPreview,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sess})
}

func (s *Server) GetSession(c *gin.Context) {
	id, ok := parseID(c, "sessionId")
	if !ok {
		return
	}
	sess, err := s.sessionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

type finishSessionRequest struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (s *Server) FinishSession(c *gin.Context) {
	id, ok := parseID(c, "sessionId")
	if !ok {
		return
	}
	var req finishSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sess, err := s.sessionSvc.Finish(c.Request.Context(), id, sessiondomain.FinishRequest{
		Status:       sessiondomain.Status(req.Status),
		ErrorMessage: strings.TrimSpace(req.ErrorMessage),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

// ChargeSession debits the session owner for the session's accumulated
// cost, converted to credits.
func (s *Server) ChargeSession(c *gin.Context) {
	id, ok := parseID(c, "sessionId")
	if !ok {
		return
	}
	sess, err := s.sessionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	credits := s.ledgerSvc.CreditsForCost(sess.TotalCostUSD)
	if credits == 0 {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"charged": 0}})
		return
	}

	txn, err := s.ledgerSvc.Debit(c.Request.Context(), ledgerdomain.ChargeRequest{
		UserID:            sess.UserID,
		Amount:            credits,
		DocumentSessionID: &sess.ID,
		Description:       "document processing",
		Actor:             sess.UserID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

type logAPICallRequest struct {
	Provider       string         `json:"provider"`
	Endpoint       string         `json:"endpoint"`
	SourceType     string         `json:"source_type"`
	CitationType   string         `json:"citation_type"`
	InputTokens    int64          `json:"input_tokens"`
	OutputTokens   int64          `json:"output_tokens"`
	SearchCount    int64          `json:"search_count"`
	CostUSD        *float64       `json:"cost_usd"`
	Success        *bool          `json:"success"`
	Confidence     *float64       `json:"confidence"`
	ResponseTimeMS int64          `json:"response_time_ms"`
	Metadata       map[string]any `json:"metadata"`
}

func (r logAPICallRequest) event(sessionID *snowflake.ID) apicalldomain.CallEvent {
	success := true
	if r.Success != nil {
		success = *r.Success
	}
	return apicalldomain.CallEvent{
		SessionID:      sessionID,
		Provider:       apicalldomain.Provider(r.Provider),
		Endpoint:       strings.TrimSpace(r.Endpoint),
		SourceType:     apicalldomain.SourceType(r.SourceType),
		CitationType:   apicalldomain.CitationType(r.CitationType),
		InputTokens:    r.InputTokens,
		OutputTokens:   r.OutputTokens,
		SearchCount:    r.SearchCount,
		CostUSD:        r.CostUSD,
		Success:        success,
		Confidence:     r.Confidence,
		ResponseTimeMS: r.ResponseTimeMS,
		Metadata:       r.Metadata,
	}
}

func (s *Server) LogAPICall(c *gin.Context) {
	id, ok := parseID(c, "sessionId")
	if !ok {
		return
	}
	var req logAPICallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	call, err := s.apiCallSvc.LogCall(c.Request.Context(), req.event(&id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": call})
}

// LogStandaloneCall records spend made outside any processing run.
func (s *Server) LogStandaloneCall(c *gin.Context) {
	var req logAPICallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	call, err := s.apiCallSvc.LogCall(c.Request.Context(), req.event(nil))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": call})
}

type logResolutionRequest struct {
	CitationID          string  `json:"citation_id"`
	Similarity          float64 `json:"similarity"`
	AlternativeSelected bool    `json:"alternative_selected"`
	AlternativeIndex    *int64  `json:"alternative_index"`
	SourceEngine        string  `json:"source_engine"`
	CitationStyle       string  `json:"citation_style"`
	CitationType        string  `json:"citation_type"`
}

func (s *Server) LogResolution(c *gin.Context) {
	id, ok := parseID(c, "sessionId")
	if !ok {
		return
	}
	var req logResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ev, err := s.resolutionSvc.LogDecision(c.Request.Context(), resolutiondomain.Decision{
		SessionID:           id,
		CitationID:          strings.TrimSpace(req.CitationID),
		Similarity:          req.Similarity,
		AlternativeSelected: req.AlternativeSelected,
		AlternativeIndex:    req.AlternativeIndex,
		SourceEngine:        strings.TrimSpace(req.SourceEngine),
		CitationStyle:       strings.TrimSpace(req.CitationStyle),
		CitationType:        strings.TrimSpace(req.CitationType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": ev})
}
