package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidSession    = errors.New("invalid_session")
	ErrInvalidSimilarity = errors.New("invalid_similarity")
)

// Decision is an inbound citation decision to classify and record.
type Decision struct {
	SessionID           snowflake.ID
	CitationID          string
	Similarity          float64 // in [0, 1]
	AlternativeSelected bool
	AlternativeIndex    *int64
	SourceEngine        string
	CitationStyle       string
	CitationType        string
}

// Service classifies citation decisions, records them, and folds the
// result into the owning session's scoreboard.
type Service interface {
	LogDecision(ctx context.Context, d Decision) (*ResolutionEvent, error)
	ListBySession(ctx context.Context, sessionID snowflake.ID) ([]ResolutionEvent, error)
}
