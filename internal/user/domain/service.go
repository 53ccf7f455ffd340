package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	Email  string
	Tier   Tier
	Region string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*User, error)
	// GetByID returns an active user; tombstoned users are not visible.
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	// Tombstone soft-deletes a user. The row is kept for ledger and audit
	// integrity; physical purge is a separate retention-gated process.
	Tombstone(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidTier   = errors.New("invalid_tier")
	ErrInvalidUser   = errors.New("invalid_user")
	ErrNotFound      = errors.New("user_not_found")
	ErrAlreadyExists = errors.New("user_already_exists")
)
