package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/citeflex/citeledger/internal/config"
	ledgerdomain "github.com/citeflex/citeledger/internal/ledger/domain"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
)

const (
	demoEmail   = "demo@citeledger.dev"
	demoCredits = 1000
)

// EnsureDemoUser seeds a demo account with starter credits so a fresh
// install has something to poke at. Idempotent; an existing demo user is
// left untouched.
func EnsureDemoUser(db *gorm.DB, node *snowflake.Node, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing userdomain.User
		err := tx.Where("email = ?", demoEmail).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		user := userdomain.User{
			ID:             node.Generate(),
			Email:          demoEmail,
			CreditsBalance: demoCredits,
			Tier:           userdomain.TierStandard,
			Status:         userdomain.StatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		// The balance cache and the ledger must agree from the first row.
		grant := ledgerdomain.CreditTransaction{
			ID:           node.Generate(),
			UserID:       user.ID,
			Seq:          1,
			Amount:       demoCredits,
			BalanceAfter: demoCredits,
			Kind:         ledgerdomain.KindBonus,
			Description:  "starter credits",
			CreatedAt:    now,
		}
		if err := tx.Create(&grant).Error; err != nil {
			return err
		}

		log.Info("seeded demo user",
			zap.String("email", demoEmail),
			zap.Int64("credits", demoCredits))
		return nil
	})
}

var Module = fx.Module("seed",
	fx.Invoke(func(cfg config.Config, db *gorm.DB, node *snowflake.Node, log *zap.Logger) error {
		if !cfg.SeedDemo {
			return nil
		}
		return EnsureDemoUser(db, node, log.Named("seed"))
	}),
)
