package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status tracks a document session's lifecycle. Cost and resolution
// counters keep accumulating after the session is finalized; the
// status itself only moves forward once.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DocumentSession is one document-processing run: the cost accumulator
// every API call folds into and the per-document resolution scoreboard.
type DocumentSession struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SessionKey     string       `gorm:"type:text;not null;uniqueIndex:ux_document_sessions_key"`
	UserID         snowflake.ID `gorm:"not null;index"`
	Filename       string       `gorm:"type:text;not null;default:''"`
	FileSizeBytes  int64        `gorm:"not null;default:0"`
	CitationStyle  string       `gorm:"type:text;not null;default:''"`
	ProcessingMode string       `gorm:"type:text;not null;default:''"`
	IsPreview      bool         `gorm:"not null;default:false"`
	Status         Status       `gorm:"type:text;not null;index"`
	ErrorMessage   *string      `gorm:"type:text"`

	TotalCostUSD float64 `gorm:"not null;default:0"`
	APICalls     int64   `gorm:"not null;default:0"`

	TotalCitations      int64    `gorm:"not null;default:0"`
	CitationsResolved   int64    `gorm:"not null;default:0"`
	CitationsFailed     int64    `gorm:"not null;default:0"`
	AcceptedOriginal    int64    `gorm:"not null;default:0"`
	MinorEdits          int64    `gorm:"not null;default:0"`
	AcceptedAlternative int64    `gorm:"not null;default:0"`
	UserProvided        int64    `gorm:"not null;default:0"`
	SuccessRate         *float64 `gorm:""`

	StartedAt        time.Time  `gorm:"not null;index"`
	FinishedAt       *time.Time `gorm:""`
	ProcessingTimeMS *int64     `gorm:""`
}

// TableName sets the database table name.
func (DocumentSession) TableName() string { return "document_sessions" }

func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }
