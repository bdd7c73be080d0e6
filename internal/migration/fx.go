package migration

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tabledesk/internal/config"
	"github.com/smallbiznis/tabledesk/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node, log *zap.Logger) error {
		log = log.Named("migration")
		if err := Run(conn); err != nil {
			if !errors.Is(err, ErrUnsupportedDialect) {
				return err
			}
			log.Warn("schema must be provisioned externally", zap.String("dialect", cfg.DBType))
		}

		if cfg.SeedDemo {
			slug, err := seed.EnsureDemoRestaurant(conn, genID)
			if err != nil {
				return err
			}
			log.Info("demo restaurant ready", zap.String("slug", slug))
		}
		return nil
	}),
)
