package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	"github.com/stackbill/stackbill/internal/config"
	reconcilerdomain "github.com/stackbill/stackbill/internal/reconciler/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// versioned migrations are written for postgres; other dialects
		// (sqlite in dev, mysql) get the schema from the models instead
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&billingdomain.BillingModel{},
				&reconcilerdomain.DeploymentRun{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
