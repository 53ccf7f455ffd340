package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidDate = errors.New("invalid_date")
	ErrDateClosed  = errors.New("date_closed")
	ErrNotFound    = errors.New("snapshot_not_found")
)

// Service maintains the daily snapshots. Rebuilds recompute a whole
// day from the event tables and write it in one upsert, so a rebuild
// can be repeated or interrupted without corrupting the row.
type Service interface {
	// RebuildSnapshot recomputes one open date. Dates past the grace
	// period are closed and return ErrDateClosed.
	RebuildSnapshot(ctx context.Context, dateKey string) (*DailySnapshot, error)

	// RebuildOpenDates rebuilds every date still inside the grace
	// period. Run on a schedule.
	RebuildOpenDates(ctx context.Context) error

	// Backfill rebuilds a closed date. The override is audited.
	Backfill(ctx context.Context, dateKey, actor, reason string) (*DailySnapshot, error)

	Get(ctx context.Context, dateKey string) (*DailySnapshot, error)
	Range(ctx context.Context, startKey, endKey string) ([]DailySnapshot, error)
}
