package database

import (
	"fmt"

	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectAudit opens the MySQL audit database and migrates its schema. It
// returns nil, nil when auditing is not configured.
func ConnectAudit(cfg *config.AppConfig) (*gorm.DB, error) {
	if !cfg.AuditEnabled() {
		return nil, nil
	}

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               cfg.Audit.DSNValue(),
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(resolveLogLevel(cfg)),
	})
	if err != nil {
		return nil, fmt.Errorf("audit database connection failed: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("audit migration failed: %w", err)
	}
	return db, nil
}

// CloseAudit releases the pool behind db.
func CloseAudit(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("resolve sql db: %w", err)
	}
	return sqlDB.Close()
}

func resolveLogLevel(cfg *config.AppConfig) logger.LogLevel {
	if cfg.IsDev() {
		return logger.Info
	}
	return logger.Warn
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.GenerationRunModel{}); err != nil {
		return err
	}
	if db.Dialector.Name() == "mysql" {
		if err := db.Exec("ALTER TABLE `generation_runs` MODIFY COLUMN `error` LONGTEXT NULL").Error; err != nil {
			return err
		}
	}
	return nil
}
