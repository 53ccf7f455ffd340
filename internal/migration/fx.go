package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	apicalldomain "github.com/citeflex/citeledger/internal/apicall/domain"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/config"
	dailystatsdomain "github.com/citeflex/citeledger/internal/dailystats/domain"
	ledgerdomain "github.com/citeflex/citeledger/internal/ledger/domain"
	resolutiondomain "github.com/citeflex/citeledger/internal/resolution/domain"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned migrations target postgres; other dialects are
			// for local runs and get the schema straight from the models.
			return conn.AutoMigrate(
				&userdomain.User{},
				&ledgerdomain.CreditTransaction{},
				&sessiondomain.DocumentSession{},
				&apicalldomain.APICallEvent{},
				&resolutiondomain.ResolutionEvent{},
				&auditdomain.AuditRecord{},
				&dailystatsdomain.DailySnapshot{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
