package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"davmigrate/pkg/logger"
)

const slowQueryThreshold = 2 * time.Second

// GormLogger routes gorm's SQL logging into the application logger.
// Statements are logged at debug, slow ones at warn, failures at error.
type GormLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

// NewGormLogger wraps log for use as gorm.Config.Logger
func NewGormLogger(log logger.Logger) *GormLogger {
	return &GormLogger{log: log, level: gormlogger.Warn}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := map[string]interface{}{
		"sql":     sql,
		"rows":    rows,
		"elapsed": elapsed,
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		fields["error"] = err
		g.log.ErrorWithFields("query failed", fields)
	case elapsed > slowQueryThreshold && g.level >= gormlogger.Warn:
		g.log.WarnWithFields("slow query", fields)
	default:
		g.log.DebugWithFields("query", fields)
	}
}
