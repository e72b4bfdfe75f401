package database

import (
	"github.com/resumekit/resumekit/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres when DATABASE_URL is set, otherwise to the
// sqlite file (":memory:" in tests and local development).
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if cfg.DatabaseURL != "" {
		return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	}
	return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
}
