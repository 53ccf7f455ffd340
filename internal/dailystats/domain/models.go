package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DateKey formats a moment as its UTC calendar date.
func DateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// ParseDateKey parses a YYYY-MM-DD key into midnight UTC.
func ParseDateKey(key string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", key, time.UTC)
}

// DailySnapshot is one pre-aggregated day, rebuilt wholesale from the
// event tables. One row per UTC date; rebuilding an unchanged day is a
// no-op.
type DailySnapshot struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	DateKey string       `gorm:"type:text;not null;uniqueIndex:ux_daily_snapshots_date"`

	DocumentsProcessed int64 `gorm:"not null;default:0"`
	DocumentsPreview   int64 `gorm:"not null;default:0"`
	DocumentsPaid      int64 `gorm:"not null;default:0"`
	CitationsFound     int64 `gorm:"not null;default:0"`
	CitationsResolved  int64 `gorm:"not null;default:0"`
	CitationsFailed    int64 `gorm:"not null;default:0"`

	CostTotalUSD   float64 `gorm:"column:cost_total_usd;not null;default:0"`
	CostOpenAIUSD  float64 `gorm:"column:cost_openai_usd;not null;default:0"`
	CostClaudeUSD  float64 `gorm:"column:cost_claude_usd;not null;default:0"`
	CostGeminiUSD  float64 `gorm:"column:cost_gemini_usd;not null;default:0"`
	CostSerpapiUSD float64 `gorm:"column:cost_serpapi_usd;not null;default:0"`
	CostOtherUSD   float64 `gorm:"column:cost_other_usd;not null;default:0"`

	CallsTotal    int64 `gorm:"not null;default:0"`
	CallsOpenAI   int64 `gorm:"column:calls_openai;not null;default:0"`
	CallsClaude   int64 `gorm:"not null;default:0"`
	CallsGemini   int64 `gorm:"not null;default:0"`
	CallsCrossref int64 `gorm:"not null;default:0"`
	CallsPubmed   int64 `gorm:"not null;default:0"`
	CallsSerpapi  int64 `gorm:"not null;default:0"`

	// Percentages; nil when the day saw no qualifying traffic.
	SuccessRateOverall       *float64 `gorm:""`
	SuccessRateURL           *float64 `gorm:""`
	SuccessRateDOI           *float64 `gorm:""`
	SuccessRateParenthetical *float64 `gorm:""`

	TypeJournal   int64 `gorm:"not null;default:0"`
	TypeBook      int64 `gorm:"not null;default:0"`
	TypeLegal     int64 `gorm:"not null;default:0"`
	TypeNewspaper int64 `gorm:"not null;default:0"`
	TypeOther     int64 `gorm:"not null;default:0"`

	ResolutionAcceptedOriginal    int64    `gorm:"not null;default:0"`
	ResolutionMinorEdit           int64    `gorm:"not null;default:0"`
	ResolutionAcceptedAlternative int64    `gorm:"not null;default:0"`
	ResolutionUserProvided        int64    `gorm:"not null;default:0"`
	ResolutionSuccessRate         *float64 `gorm:""`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (DailySnapshot) TableName() string { return "daily_snapshots" }
