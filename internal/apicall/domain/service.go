package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidSession      = errors.New("invalid_session")
	ErrInvalidProvider     = errors.New("invalid_provider")
	ErrInvalidSourceType   = errors.New("invalid_source_type")
	ErrInvalidCitationType = errors.New("invalid_citation_type")
	ErrInvalidTokens       = errors.New("invalid_tokens")
	ErrInvalidCost         = errors.New("invalid_cost")
)

// CallEvent is an inbound report of one upstream API request. The
// session reference is nil for standalone calls made outside a
// processing run. A nil CostUSD means the caller wants the rate table
// applied; a supplied cost is stored as reported.
type CallEvent struct {
	SessionID      *snowflake.ID
	Provider       Provider
	Endpoint       string
	SourceType     SourceType
	CitationType   CitationType
	InputTokens    int64
	OutputTokens   int64
	SearchCount    int64
	CostUSD        *float64
	Success        bool
	Confidence     *float64
	ResponseTimeMS int64
	Metadata       map[string]any
}

// Service appends billed API calls and keeps the owning session's cost
// accumulator in step with them.
type Service interface {
	LogCall(ctx context.Context, ev CallEvent) (*APICallEvent, error)
	ListBySession(ctx context.Context, sessionID snowflake.ID) ([]APICallEvent, error)
}
