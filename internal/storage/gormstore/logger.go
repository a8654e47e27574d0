// internal/storage/gormstore/logger.go
package gormstore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger реализует интерфейс logger.Interface для GORM поверх zap.
type gormLogger struct {
	zapLogger     *zap.Logger
	logLevel      logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(zapLogger *zap.Logger, level logger.LogLevel) logger.Interface {
	return &gormLogger{
		zapLogger:     zapLogger,
		logLevel:      level,
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace логирует SQL: ошибки всегда, медленные запросы на Warn, остальное на Debug.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.logLevel >= logger.Error:
		l.zapLogger.Error("query failed", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold && l.logLevel >= logger.Warn:
		l.zapLogger.Warn("slow query", fields...)
	case l.logLevel >= logger.Info:
		l.zapLogger.Debug("query", fields...)
	}
}
