package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusTombstoned Status = "tombstoned"
)

// User owns credit transactions and document sessions. CreditsBalance is a
// cache of the ledger sum; only the ledger writes it.
type User struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	Email          string       `gorm:"type:text;not null;uniqueIndex"`
	CreditsBalance int64        `gorm:"not null;default:0"`
	Tier           Tier         `gorm:"type:text;not null;default:'free'"`
	Region         string       `gorm:"type:text;not null;default:'us-east-1'"`
	Status         Status       `gorm:"type:text;not null;default:'active';index"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null"`
	TombstonedAt   *time.Time   `gorm:""`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStandard, TierPro:
		return true
	}
	return false
}
