package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrNotFound         = errors.New("session_not_found")
	ErrAlreadyFinalized = errors.New("session_already_finalized")
	ErrDuplicateKey     = errors.New("duplicate_session_key")
)

// StartRequest describes a new processing run. SessionKey is the
// collaborator's external handle; one is generated when absent.
type StartRequest struct {
	UserID         snowflake.ID
	SessionKey     string
	Filename       string
	FileSizeBytes  int64
	CitationStyle  string
	ProcessingMode string
	IsPreview      bool
}

// FinishRequest finalizes a run. ErrorMessage is only stored for
// failed runs.
type FinishRequest struct {
	Status       Status
	ErrorMessage string
}

// ResolutionDelta carries per-tier counter increments to fold into a
// session's scoreboard.
type ResolutionDelta struct {
	AcceptedOriginal    int64
	MinorEdits          int64
	AcceptedAlternative int64
	UserProvided        int64
}

func (d ResolutionDelta) Total() int64 {
	return d.AcceptedOriginal + d.MinorEdits + d.AcceptedAlternative + d.UserProvided
}

func (d ResolutionDelta) Successes() int64 {
	return d.AcceptedOriginal + d.MinorEdits + d.AcceptedAlternative
}

type Service interface {
	Start(ctx context.Context, req StartRequest) (*DocumentSession, error)
	Get(ctx context.Context, id snowflake.ID) (*DocumentSession, error)

	// Finish moves the session to a terminal status exactly once and
	// stamps the wall-clock processing time.
	Finish(ctx context.Context, id snowflake.ID, req FinishRequest) (*DocumentSession, error)

	// FoldResolutions accumulates resolution counters and recomputes
	// the session's success rate. Allowed after finalization: decisions
	// can trail the processing run.
	FoldResolutions(ctx context.Context, id snowflake.ID, delta ResolutionDelta) (*DocumentSession, error)

	// SweepStale fails processing runs that have been running longer
	// than the cutoff, so abandoned uploads stop counting as open work.
	SweepStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
