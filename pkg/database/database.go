// Package database opens the record store that holds the attachments and
// the ledger table.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"

	"davmigrate/pkg/config"
	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/retry"
)

// Dialector returns the gorm dialector for the configured driver
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "sqlserver", "mssql":
		return sqlserver.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, errs.Config(fmt.Sprintf("unsupported database driver %q", driver), nil)
	}
}

// Open connects to the database and pings it, retrying connection
// failures with exponential backoff.
func Open(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	backoff := retry.DefaultExponentialBackoff()
	if cfg.ConnectDelay > 0 {
		backoff.BaseDelay = cfg.ConnectDelay
	}

	log = log.WithField("driver", cfg.Driver)

	return retry.DoWithResult(ctx, func(ctx context.Context) (*gorm.DB, error) {
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: NewGormLogger(log),
		})
		if err != nil {
			return nil, errs.Connection("open database", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, errs.Connection("get connection pool", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, errs.Connection("ping database", err)
		}

		log.Debug("database connection established")
		return db, nil
	}, &retry.Config{
		MaxAttempts: cfg.ConnectAttempts,
		Backoff:     backoff,
		RetryIf:     retry.DefaultRetryIf,
		Logger:      log,
	})
}

// Close releases the pool behind db
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
