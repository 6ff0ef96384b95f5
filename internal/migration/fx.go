package migration

import (
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if err := Apply(conn, cfg); err != nil {
			return err
		}

		if err := seed.EnsureDefaultTiers(conn); err != nil {
			return err
		}
		log.Info("schema ready", zap.String("dialect", conn.Dialector.Name()))
		return nil
	}),
)

// Apply brings the schema up to date. Postgres runs the versioned SQL files;
// the other dialects are only used locally and fall back to AutoMigrate.
func Apply(conn *gorm.DB, cfg config.Config) error {
	if cfg.DBType != "postgres" {
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
