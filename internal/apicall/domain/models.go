package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Provider identifies the external service a call was billed against.
type Provider string

const (
	ProviderCrossref      Provider = "crossref"
	ProviderPubmed        Provider = "pubmed"
	ProviderOpenalex      Provider = "openalex"
	ProviderGoogleBooks   Provider = "google_books"
	ProviderOpenLibrary   Provider = "open_library"
	ProviderCourtListener Provider = "courtlistener"
	ProviderSerpapi       Provider = "serpapi"
	ProviderOpenAI        Provider = "openai"
	ProviderClaude        Provider = "claude"
	ProviderGemini        Provider = "gemini"
	ProviderGenericURL    Provider = "generic_url"
	ProviderCache         Provider = "cache"
	ProviderUnknown       Provider = "unknown"
)

// SourceType is the kind of reference being resolved.
type SourceType string

const (
	SourceURL           SourceType = "url"
	SourceDOI           SourceType = "doi"
	SourcePMID          SourceType = "pmid"
	SourceISBN          SourceType = "isbn"
	SourceArxiv         SourceType = "arxiv"
	SourceParenthetical SourceType = "parenthetical"
	SourceFootnote      SourceType = "footnote"
	SourceUnknown       SourceType = "unknown"
)

// CitationType classifies the cited work.
type CitationType string

const (
	CitationJournal    CitationType = "journal"
	CitationBook       CitationType = "book"
	CitationLegal      CitationType = "legal"
	CitationNewspaper  CitationType = "newspaper"
	CitationGovernment CitationType = "government"
	CitationInterview  CitationType = "interview"
	CitationLetter     CitationType = "letter"
	CitationMedical    CitationType = "medical"
	CitationURL        CitationType = "url"
	CitationUnknown    CitationType = "unknown"
)

// APICallEvent is one billed upstream request, appended as it happens.
// SessionID is null for standalone calls; UserID is zero when no
// session ties the spend to a user.
type APICallEvent struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	SessionID      *snowflake.ID     `gorm:"index"`
	UserID         snowflake.ID      `gorm:"not null;index;default:0"`
	Provider       Provider          `gorm:"type:text;not null;index"`
	Endpoint       string            `gorm:"type:text;not null;default:''"`
	SourceType     SourceType        `gorm:"type:text;not null"`
	CitationType   CitationType      `gorm:"type:text;not null"`
	InputTokens    int64             `gorm:"not null;default:0"`
	OutputTokens   int64             `gorm:"not null;default:0"`
	SearchCount    int64             `gorm:"not null;default:0"`
	CostUSD        float64           `gorm:"not null;default:0"`
	Success        bool              `gorm:"not null;default:true"`
	Confidence     *float64          `gorm:""`
	ResponseTimeMS int64             `gorm:"not null;default:0"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;index"`
}

// TableName sets the database table name.
func (APICallEvent) TableName() string { return "api_call_events" }

// tokenRate is USD per one million tokens.
type tokenRate struct {
	input  float64
	output float64
}

var tokenPricing = map[Provider]tokenRate{
	ProviderGemini: {input: 0.075, output: 0.30},
	ProviderOpenAI: {input: 2.50, output: 10.00},
	ProviderClaude: {input: 3.00, output: 15.00},
}

// serpapiPerSearch is the flat USD price of one search.
const serpapiPerSearch = 0.01

// CalculateCost prices a call from the static rate table. Providers
// without a rate (free APIs, cache hits) cost zero. The result is
// rounded to 8 decimal places so repeated aggregation stays stable.
func CalculateCost(provider Provider, inputTokens, outputTokens, searchCount int64) float64 {
	var cost float64
	if rate, ok := tokenPricing[provider]; ok {
		cost = float64(inputTokens)/1_000_000*rate.input +
			float64(outputTokens)/1_000_000*rate.output
	} else if provider == ProviderSerpapi {
		n := searchCount
		if n <= 0 {
			n = 1
		}
		cost = float64(n) * serpapiPerSearch
	}
	return math.Round(cost*1e8) / 1e8
}

func (p Provider) Valid() bool {
	switch p {
	case ProviderCrossref, ProviderPubmed, ProviderOpenalex, ProviderGoogleBooks,
		ProviderOpenLibrary, ProviderCourtListener, ProviderSerpapi, ProviderOpenAI,
		ProviderClaude, ProviderGemini, ProviderGenericURL, ProviderCache, ProviderUnknown:
		return true
	}
	return false
}

func (s SourceType) Valid() bool {
	switch s {
	case SourceURL, SourceDOI, SourcePMID, SourceISBN, SourceArxiv,
		SourceParenthetical, SourceFootnote, SourceUnknown:
		return true
	}
	return false
}

func (c CitationType) Valid() bool {
	switch c {
	case CitationJournal, CitationBook, CitationLegal, CitationNewspaper,
		CitationGovernment, CitationInterview, CitationLetter, CitationMedical,
		CitationURL, CitationUnknown:
		return true
	}
	return false
}
