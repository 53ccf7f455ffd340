package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier is the citation resolution outcome class.
type Tier string

const (
	// TierAcceptedOriginal: the user kept the resolved citation as-is.
	TierAcceptedOriginal Tier = "accepted_original"
	// TierMinorEdit: the user made small edits to the resolved citation.
	TierMinorEdit Tier = "minor_edit"
	// TierAcceptedAlternative: the user picked a different suggestion.
	TierAcceptedAlternative Tier = "accepted_alternative"
	// TierUserProvided: resolution failed; the user wrote their own.
	TierUserProvided Tier = "user_provided"
)

// ResolutionEvent records one citation decision, append-only.
type ResolutionEvent struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	SessionID           snowflake.ID `gorm:"not null;index"`
	CitationID          string       `gorm:"type:text;not null"`
	Tier                Tier         `gorm:"type:text;not null;index"`
	SimilarityRatio     float64      `gorm:"not null"`
	AlternativeSelected bool         `gorm:"not null;default:false"`
	AlternativeIndex    *int64       `gorm:""`
	SourceEngine        string       `gorm:"type:text;not null;default:'';index"`
	CitationStyle       string       `gorm:"type:text;not null;default:''"`
	CitationType        string       `gorm:"type:text;not null;default:''"`
	CreatedAt           time.Time    `gorm:"not null;index"`
}

// TableName sets the database table name.
func (ResolutionEvent) TableName() string { return "resolution_events" }

func (t Tier) Valid() bool {
	switch t {
	case TierAcceptedOriginal, TierMinorEdit, TierAcceptedAlternative, TierUserProvided:
		return true
	}
	return false
}

// Success reports whether the tier counts toward the success rate.
// Only user_provided is a failure.
func (t Tier) Success() bool { return t != TierUserProvided }

// Classify maps a similarity score and the alternative-selected flag to
// a tier. Selecting an alternative wins regardless of similarity; the
// thresholds are inclusive lower bounds.
func Classify(similarity float64, alternativeSelected bool, thresholdOriginal, thresholdMinor float64) Tier {
	if alternativeSelected {
		return TierAcceptedAlternative
	}
	if similarity >= thresholdOriginal {
		return TierAcceptedOriginal
	}
	if similarity >= thresholdMinor {
		return TierMinorEdit
	}
	return TierUserProvided
}
