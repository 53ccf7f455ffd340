package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Kind classifies a balance-affecting transaction.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSpend    Kind = "spend"
	KindRefund   Kind = "refund"
	KindBonus    Kind = "bonus"
)

// CreditTransaction is one immutable, signed ledger entry. For a user's
// transactions ordered by seq, balance_after[i] = balance_after[i-1] + amount[i],
// and the last balance_after equals the user's cached balance.
type CreditTransaction struct {
	ID                snowflake.ID  `gorm:"primaryKey"`
	UserID            snowflake.ID  `gorm:"not null;uniqueIndex:ux_credit_txns_user_seq,priority:1;index"`
	Seq               int64         `gorm:"not null;uniqueIndex:ux_credit_txns_user_seq,priority:2"`
	Amount            int64         `gorm:"not null"`
	BalanceAfter      int64         `gorm:"not null"`
	Kind              Kind          `gorm:"type:text;not null;index"`
	DocumentSessionID *snowflake.ID `gorm:"index"`
	Description       string        `gorm:"type:text;not null;default:''"`
	CreatedAt         time.Time     `gorm:"not null;index"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// BeforeUpdate rejects mutation of an existing ledger entry.
func (CreditTransaction) BeforeUpdate(*gorm.DB) error { return ErrImmutableTransaction }

// BeforeDelete rejects removal of a ledger entry.
func (CreditTransaction) BeforeDelete(*gorm.DB) error { return ErrImmutableTransaction }

func (k Kind) Valid() bool {
	switch k {
	case KindPurchase, KindSpend, KindRefund, KindBonus:
		return true
	}
	return false
}

// Debits carry negative amounts; credits positive.
func (k Kind) Sign() int64 {
	if k == KindSpend {
		return -1
	}
	return 1
}
