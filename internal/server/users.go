package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/citeflex/citeledger/internal/ledger/domain"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
)

type createUserRequest struct {
	Email  string `json:"email"`
	Tier   string `json:"tier"`
	Region string `json:"region"`
}

func (s *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userSvc.Create(c.Request.Context(), userdomain.CreateRequest{
		Email:  strings.TrimSpace(req.Email),
		Tier:   userdomain.Tier(req.Tier),
		Region: strings.TrimSpace(req.Region),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) GetUser(c *gin.Context) {
	id, ok := parseID(c, "userId")
	if !ok {
		return
	}
	user, err := s.userSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) TombstoneUser(c *gin.Context) {
	id, ok := parseID(c, "userId")
	if !ok {
		return
	}
	if err := s.userSvc.Tombstone(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "tombstoned"})
}

type creditUserRequest struct {
	Amount            int64  `json:"amount"`
	Kind              string `json:"kind"`
	DocumentSessionID string `json:"document_session_id"`
	Description       string `json:"description"`
}

func (s *Server) CreditUser(c *gin.Context) {
	id, ok := parseID(c, "userId")
	if !ok {
		return
	}
	var req creditUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	charge := ledgerdomain.ChargeRequest{
		UserID:      id,
		Amount:      req.Amount,
		Kind:        ledgerdomain.Kind(req.Kind),
		Description: strings.TrimSpace(req.Description),
		Actor:       id.String(),
	}
	if raw := strings.TrimSpace(req.DocumentSessionID); raw != "" {
		sessID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("document_session_id", "invalid_session", "invalid session id"))
			return
		}
		charge.DocumentSessionID = &sessID
	}

	txn, err := s.ledgerSvc.Credit(c.Request.Context(), charge)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (s *Server) GetBalance(c *gin.Context) {
	id, ok := parseID(c, "userId")
	if !ok {
		return
	}
	balance, err := s.ledgerSvc.Balance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": id.String(), "balance": balance}})
}

func (s *Server) ListLedger(c *gin.Context) {
	id, ok := parseID(c, "userId")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	txns, err := s.ledgerSvc.History(c.Request.Context(), id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txns})
}

func parseSnowflake(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(param)))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(param, "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
