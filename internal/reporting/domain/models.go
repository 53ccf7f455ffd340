package domain

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("invalid_range")

// ProviderCost is one provider's spend over a reporting window.
type ProviderCost struct {
	Provider string  `json:"provider"`
	Calls    int64   `json:"calls"`
	CostUSD  float64 `json:"cost_usd"`
}

// CostReport summarizes spend over a window.
type CostReport struct {
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	TotalUSD   float64        `json:"total_usd"`
	TotalCalls int64          `json:"total_calls"`
	ByProvider []ProviderCost `json:"by_provider"`
}

// SourceRate is the call success rate for one source type. Rate is nil
// when the window saw no calls of that type.
type SourceRate struct {
	SourceType string   `json:"source_type"`
	Total      int64    `json:"total"`
	Successes  int64    `json:"successes"`
	Rate       *float64 `json:"rate"`
}

// EngineRate is the resolution success rate for one source engine.
type EngineRate struct {
	Engine    string   `json:"engine"`
	Total     int64    `json:"total"`
	Successes int64    `json:"successes"`
	Rate      *float64 `json:"rate"`
}

// ResolutionReport summarizes citation decisions over a window.
type ResolutionReport struct {
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	Total               int64     `json:"total"`
	AcceptedOriginal    int64     `json:"accepted_original"`
	MinorEdits          int64     `json:"minor_edits"`
	AcceptedAlternative int64     `json:"accepted_alternative"`
	UserProvided        int64     `json:"user_provided"`
	SuccessRate         *float64  `json:"success_rate"`
}

// Service answers analytics questions from the event tables. Windows
// are half-open: [start, end).
type Service interface {
	Costs(ctx context.Context, start, end time.Time) (*CostReport, error)
	SuccessRates(ctx context.Context, start, end time.Time) ([]SourceRate, error)
	ResolutionStats(ctx context.Context, start, end time.Time) (*ResolutionReport, error)
	ResolutionByEngine(ctx context.Context, start, end time.Time) ([]EngineRate, error)
}
